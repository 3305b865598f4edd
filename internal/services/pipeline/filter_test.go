package pipeline

import (
	"testing"
	"testing/quick"

	"detectsuite/internal/model"

	"github.com/google/go-cmp/cmp"
)

func det(x, y, w, h, class int, conf float64) model.Detection {
	return model.Detection{Box: model.Box{X: x, Y: y, Width: w, Height: h}, ClassID: class, Confidence: conf}
}

func TestFilter_KeepsSelectedInOrder(t *testing.T) {
	in := []model.Detection{
		det(10, 10, 50, 20, 2, 0.9),
		det(0, 0, 30, 30, 5, 0.8),
		det(5, 5, 10, 10, 2, 0.4),
	}

	got := Filter(in, model.NewClassSet(2))
	want := []model.Detection{in[0], in[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Filter mismatch (-want +got):\n%s", diff)
	}
	if len(in) != 3 {
		t.Error("Filter must not modify its input")
	}
}

func TestFilter_EmptySelection(t *testing.T) {
	in := []model.Detection{det(10, 10, 50, 20, 2, 0.9)}

	for _, sel := range []model.ClassSet{nil, model.NewClassSet()} {
		if got := Filter(in, sel); len(got) != 0 {
			t.Errorf("Expected nothing for empty selection, got %v", got)
		}
	}
}

func TestDropInvalid(t *testing.T) {
	in := []model.Detection{
		det(0, 0, 0, 30, 2, 0.9),
		det(10, 10, 50, 20, 2, 0.9),
		det(-3, 0, 10, 10, 1, 0.7),
		det(0, 0, 10, 0, 1, 0.7),
	}

	got := DropInvalid(in)
	if diff := cmp.Diff([]model.Detection{in[1]}, got); diff != "" {
		t.Errorf("DropInvalid mismatch (-want +got):\n%s", diff)
	}
}

// Every kept detection is counted exactly once, and only selected classes appear.
func TestFilterCount_Property(t *testing.T) {
	catalog := model.CatalogFromList(tenClasses)

	property := func(classes []uint8, mask uint16) bool {
		detections := make([]model.Detection, len(classes))
		for i, c := range classes {
			detections[i] = det(i, i, 5, 5, int(c)%10, 0.5)
		}
		selected := model.NewClassSet()
		for id := 0; id < 10; id++ {
			if mask&(1<<id) != 0 {
				selected[id] = struct{}{}
			}
		}

		kept := Filter(detections, selected)
		counts, err := Count(kept, catalog)
		if err != nil {
			return false
		}

		total := 0
		for name, n := range counts {
			id, ok := catalog.ID(name)
			if !ok || !selected.Has(id) || n <= 0 {
				return false
			}
			total += n
		}
		return total == len(kept)
	}

	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

func TestFilterCount_CarScenario(t *testing.T) {
	catalog := model.NewClassCatalog(map[int]string{2: "car", 5: "person"})
	in := []model.Detection{det(10, 10, 50, 20, 2, 0.9), det(0, 0, 30, 30, 5, 0.4)}

	kept := Filter(DropInvalid(in), model.NewClassSet(2))
	if len(kept) != 1 || kept[0].ClassID != 2 {
		t.Fatalf("Expected only the car, got %v", kept)
	}
	counts, err := Count(kept, catalog)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"car": 1}, counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
}

func TestDropInvalid_ZeroWidthNeverReachesFilter(t *testing.T) {
	in := []model.Detection{det(5, 5, 0, 10, 2, 0.9)}

	for _, sel := range []model.ClassSet{model.NewClassSet(2), model.NewClassSet(0, 1, 2, 3)} {
		if got := Filter(DropInvalid(in), sel); len(got) != 0 {
			t.Errorf("Zero width box survived selection %v: %v", sel.IDs(), got)
		}
	}
}
