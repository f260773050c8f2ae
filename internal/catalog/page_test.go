package catalog

import (
	"math/rand"
	"testing"
)

func hasControl(p Page, c Control) bool {
	for _, ctl := range p.Controls {
		if ctl == c {
			return true
		}
	}
	return false
}

func makeCategories(n int) []Category {
	cats := make([]Category, n)
	for i := range cats {
		cats[i] = Category{ID: int64(i + 1), Name: "cat"}
	}
	return cats
}

func TestBuildPageFiveRootsPageSizeFour(t *testing.T) {
	cats := makeCategories(5)

	p0, err := BuildPage(cats, 4, 0, false)
	if err != nil {
		t.Fatalf("page 0: %v", err)
	}
	if len(p0.Items) != 4 {
		t.Errorf("page 0 items = %d, want 4", len(p0.Items))
	}
	if hasControl(p0, ControlPrev) {
		t.Error("page 0 must not have Prev")
	}
	if !hasControl(p0, ControlNext) {
		t.Error("page 0 must have Next")
	}
	if !hasControl(p0, ControlHome) {
		t.Error("page 0 must have Home")
	}

	p1, err := BuildPage(cats, 4, 1, false)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(p1.Items) != 1 {
		t.Errorf("page 1 items = %d, want 1", len(p1.Items))
	}
	if !hasControl(p1, ControlPrev) {
		t.Error("page 1 must have Prev")
	}
	if hasControl(p1, ControlNext) {
		t.Error("page 1 must not have Next")
	}
	if !hasControl(p1, ControlHome) {
		t.Error("page 1 must have Home")
	}
}

func TestBuildPageBoundaries(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 500; trial++ {
		n := rng.Intn(40)
		pageSize := 1 + rng.Intn(8)
		cats := makeCategories(n)
		count := PageCount(n, pageSize)

		for idx := 0; idx < count; idx++ {
			p, err := BuildPage(cats, pageSize, idx, false)
			if err != nil {
				t.Fatalf("n=%d size=%d idx=%d: %v", n, pageSize, idx, err)
			}
			if got, want := hasControl(p, ControlPrev), idx > 0; got != want {
				t.Fatalf("n=%d size=%d idx=%d: Prev=%v, want %v", n, pageSize, idx, got, want)
			}
			if got, want := hasControl(p, ControlNext), idx < count-1; got != want {
				t.Fatalf("n=%d size=%d idx=%d: Next=%v, want %v", n, pageSize, idx, got, want)
			}
			if !hasControl(p, ControlHome) {
				t.Fatalf("n=%d size=%d idx=%d: missing Home", n, pageSize, idx)
			}
		}

		if _, err := BuildPage(cats, pageSize, count, false); err != ErrOutOfRange {
			t.Fatalf("n=%d size=%d idx=%d: err=%v, want ErrOutOfRange", n, pageSize, count, err)
		}
	}
}

func TestBuildPageBackControl(t *testing.T) {
	cats := makeCategories(3)

	withParent, err := BuildPage(cats, 4, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if !hasControl(withParent, ControlBack) {
		t.Error("hasParent=true must add Back")
	}

	withoutParent, err := BuildPage(cats, 4, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if hasControl(withoutParent, ControlBack) {
		t.Error("hasParent=false must not add Back")
	}
}

func TestBuildPageDeterministic(t *testing.T) {
	cats := makeCategories(9)
	a, err := BuildPage(cats, 4, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildPage(cats, 4, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Items) != len(b.Items) || len(a.Controls) != len(b.Controls) {
		t.Fatalf("same inputs produced different pages: %+v vs %+v", a, b)
	}
	for i := range a.Controls {
		if a.Controls[i] != b.Controls[i] {
			t.Fatalf("control %d differs: %v vs %v", i, a.Controls[i], b.Controls[i])
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		index, n, size, want int
	}{
		{0, 5, 4, 0},
		{1, 5, 4, 1},
		{2, 5, 4, 1},
		{-3, 5, 4, 0},
		{7, 0, 4, 0},
	}
	for _, tc := range cases {
		if got := ClampPage(tc.index, tc.n, tc.size); got != tc.want {
			t.Errorf("ClampPage(%d, %d, %d) = %d, want %d", tc.index, tc.n, tc.size, got, tc.want)
		}
	}
}
