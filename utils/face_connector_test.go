package utils

import (
	"testing"
)

// TestFaceConnector_SelfPeriodic wraps a field onto itself on every face and
// checks that every halo cell whose periodic image is owned received it.
func TestFaceConnector_SelfPeriodic(t *testing.T) {
	g, err := NewGrid([3]int{4, 3, 5}, 2)
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	fc, err := NewFaceConnector(g, 2)
	if err != nil {
		t.Fatalf("Failed to create FaceConnector: %v", err)
	}
	if err := fc.Verify(); err != nil {
		t.Fatalf("Verification failed: %v", err)
	}

	value := func(i, j, k int) float64 {
		return float64(i + 10*j + 100*k)
	}
	field := g.NewScalar()
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				field[g.Idx(i, j, k)] = value(i, j, k)
			}
		}
	}

	// x, y, z order fills edges and corners
	for face := 0; face < NumFaces; face++ {
		fc.Wrap(face, field)
	}

	wrap := func(a, n int) int {
		return (a-1+n)%n + 1
	}
	lo := 1 - g.Guide
	for k := lo; k <= g.Size[2]+g.Guide; k++ {
		for j := lo; j <= g.Size[1]+g.Guide; j++ {
			for i := lo; i <= g.Size[0]+g.Guide; i++ {
				expected := value(wrap(i, g.Size[0]), wrap(j, g.Size[1]), wrap(k, g.Size[2]))
				if actual := field[g.Idx(i, j, k)]; actual != expected {
					t.Fatalf("cell (%d,%d,%d): expected %v, got %v", i, j, k, expected, actual)
				}
			}
		}
	}
}

func TestFaceConnector_PickPlace(t *testing.T) {
	g, _ := NewGrid([3]int{3, 3, 3}, 1)
	fc, err := NewFaceConnector(g, 1)
	if err != nil {
		t.Fatalf("Failed to create FaceConnector: %v", err)
	}

	t.Run("Lengths", func(t *testing.T) {
		expected := [NumFaces]int{9, 9, 15, 15, 25, 25}
		for face := 0; face < NumFaces; face++ {
			if n := len(fc.GetPickIndices(face)); n != expected[face] {
				t.Errorf("%s: expected %d pick indices, got %d", FaceName(face), expected[face], n)
			}
			if n := len(fc.GetPlaceIndices(face)); n != expected[face] {
				t.Errorf("%s: expected %d place indices, got %d", FaceName(face), expected[face], n)
			}
		}
		if fc.GetPickIndices(NumFaces) != nil {
			t.Errorf("Expected nil for an invalid face")
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		src := g.NewScalar()
		for n := range src {
			src[n] = float64(n)
		}
		dst := g.NewScalar()
		buf := make([]float64, len(fc.GetPickIndices(XPlus)))
		fc.Pick(XPlus, src, buf)
		fc.Place(XMinus, dst, buf)
		for j := 1; j <= 3; j++ {
			for k := 1; k <= 3; k++ {
				if dst[g.Idx(0, j, k)] != src[g.Idx(3, j, k)] {
					t.Errorf("(0,%d,%d): expected %v, got %v", j, k, src[g.Idx(3, j, k)], dst[g.Idx(0, j, k)])
				}
			}
		}
	})

	t.Run("InvalidWidth", func(t *testing.T) {
		if _, err := NewFaceConnector(g, 2); err == nil {
			t.Errorf("Expected an error for a width wider than the halo")
		}
	})
}

// TestFaceConnector_ThinAxis wraps a grid one cell deep in y and z through a
// halo of two layers: every halo cell takes the value of its periodic image.
func TestFaceConnector_ThinAxis(t *testing.T) {
	g, err := NewGrid([3]int{4, 1, 1}, 2)
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	fc, err := NewFaceConnector(g, 2)
	if err != nil {
		t.Fatalf("Failed to create FaceConnector: %v", err)
	}
	if err := fc.Verify(); err != nil {
		t.Fatalf("Verification failed: %v", err)
	}
	if fc.Thin(0) || !fc.Thin(1) || !fc.Thin(2) {
		t.Fatalf("Expected only y and z to be thin")
	}

	field := g.NewScalar()
	for i := 1; i <= 4; i++ {
		field[g.Idx(i, 1, 1)] = float64(i)
	}
	for face := 0; face < NumFaces; face++ {
		fc.Wrap(face, field)
	}
	for k := -1; k <= 3; k++ {
		for j := -1; j <= 3; j++ {
			for i := -1; i <= 6; i++ {
				expected := float64((i-1+4)%4 + 1)
				if actual := field[g.Idx(i, j, k)]; actual != expected {
					t.Fatalf("cell (%d,%d,%d): expected %v, got %v", i, j, k, expected, actual)
				}
			}
		}
	}
}
