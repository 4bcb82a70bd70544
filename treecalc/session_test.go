package treecalc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arthur-debert/treecalc/formats"
	"github.com/arthur-debert/treecalc/testutil"
	"github.com/arthur-debert/treecalc/treecalc/editor"
	"github.com/arthur-debert/treecalc/treecalc/history"
	"github.com/arthur-debert/treecalc/treecalc/storage"
	"github.com/arthur-debert/treecalc/types"
	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
)

type fakePicker struct {
	open    []string
	save    []string
	err     error
	titles  []string
	suggest []string
}

func (p *fakePicker) PickOpen(ctx context.Context, title string) (string, error) {
	p.titles = append(p.titles, title)
	if p.err != nil {
		return "", p.err
	}
	if len(p.open) == 0 {
		return "", ErrNothingSelected
	}
	path := p.open[0]
	p.open = p.open[1:]
	return path, nil
}

func (p *fakePicker) PickSave(ctx context.Context, title, suggested string) (string, error) {
	p.titles = append(p.titles, title)
	p.suggest = append(p.suggest, suggested)
	if p.err != nil {
		return "", p.err
	}
	if len(p.save) == 0 {
		return "", ErrNothingSelected
	}
	path := p.save[0]
	p.save = p.save[1:]
	return path, nil
}

func loadedSession(t *testing.T, opts ...Option) (*Session, *storage.MockFileSystem) {
	t.Helper()
	files, mfs := testutil.MockBudgetFiles(t)
	s := NewSession(append([]Option{WithFiles(files)}, opts...)...)
	if err := s.Load(context.Background(), testutil.DocumentPath); err != nil {
		t.Fatalf("loading budget: %v", err)
	}
	return s, mfs
}

func TestNoDocumentLoaded(t *testing.T) {
	s := NewSession()
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["path"] = s.DocumentPath()
	_, checks["item"] = s.Item(0)
	_, checks["items"] = s.Items()
	_, checks["rename"] = s.Rename(0, "x")
	_, checks["add"] = s.AddChild(0)
	_, checks["toggle"] = s.ToggleExpandable(ctx, 0)
	_, checks["values"] = s.Values([]uint64{0})
	_, checks["template"] = s.Template()
	checks["save"] = s.Save(ctx)
	checks["check"] = s.Check()

	for name, err := range checks {
		if !errors.Is(err, types.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestLoad(t *testing.T) {
	s, _ := loadedSession(t)

	path, err := s.DocumentPath()
	if err != nil || path != testutil.DocumentPath {
		t.Fatalf("expected path %s, got %q (%v)", testutil.DocumentPath, path, err)
	}

	items, err := s.Items()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 7 {
		t.Errorf("expected 7 items, got %d", len(items))
	}

	c, err := s.Item(testutil.C)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "C" || c.RefCount != 3 {
		t.Errorf("expected C with ref_count 3, got %+v", c)
	}

	t.Run("returned items are copies", func(t *testing.T) {
		c.Name = "changed"
		again, _ := s.Item(testutil.C)
		if again.Name != "C" {
			t.Error("mutating a returned item changed the session")
		}
	})

	t.Run("failed load keeps the current document", func(t *testing.T) {
		err := s.Load(context.Background(), "missing.json")
		if !errors.Is(err, types.ErrIO) {
			t.Fatalf("expected ErrIO, got %v", err)
		}
		if path, _ := s.DocumentPath(); path != testutil.DocumentPath {
			t.Errorf("expected %s to stay current, got %s", testutil.DocumentPath, path)
		}
	})

	t.Run("missing root name", func(t *testing.T) {
		files, mfs := testutil.MockBudgetFiles(t)
		testutil.WriteFile(t, mfs, "bad.json", &types.Document{RootName: "Nope", Items: testutil.Budget().Items})
		s := NewSession(WithFiles(files))
		if err := s.Load(context.Background(), "bad.json"); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestResolve(t *testing.T) {
	s, _ := loadedSession(t)

	tests := []struct {
		ref  string
		want uint64
	}{
		{ref: "Total", want: testutil.Total},
		{ref: "B", want: testutil.B},
		{ref: "6", want: testutil.C},
	}
	for _, tt := range tests {
		got, err := s.Resolve(tt.ref)
		if err != nil {
			t.Errorf("%s: %v", tt.ref, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.ref, tt.want, got)
		}
	}

	for _, ref := range []string{"Nobody", "99"} {
		if _, err := s.Resolve(ref); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", ref, err)
		}
	}
}

func TestEditCommands(t *testing.T) {
	s, _ := loadedSession(t)

	t.Run("rename merges into existing leaf", func(t *testing.T) {
		id, err := s.AddChild(testutil.Bonus)
		if err != nil {
			t.Fatal(err)
		}
		result, err := s.Rename(id, "B")
		if err != nil {
			t.Fatal(err)
		}
		merged, ok := result.(editor.MergedInto)
		if !ok {
			t.Fatalf("expected MergedInto, got %T", result)
		}
		if merged.Removed != id || merged.Survivor != testutil.B {
			t.Errorf("unexpected merge: %+v", merged)
		}
		b, _ := s.Item(testutil.B)
		if b.RefCount != 3 {
			t.Errorf("expected B ref_count 3, got %d", b.RefCount)
		}
	})

	t.Run("delete shared leaf from one parent", func(t *testing.T) {
		parent := testutil.Bonus
		result, err := s.Delete(testutil.B, &parent)
		if err != nil {
			t.Fatal(err)
		}
		if result.Removed != nil {
			t.Error("shared leaf must not be removed")
		}
		b, _ := s.Item(testutil.B)
		if b.RefCount != 2 {
			t.Errorf("expected B ref_count 2, got %d", b.RefCount)
		}
	})

	t.Run("update reduction", func(t *testing.T) {
		if err := s.UpdateReduction(testutil.North, types.Min); err != nil {
			t.Fatal(err)
		}
		north, _ := s.Item(testutil.North)
		if north.Expand.Reduction != types.Min {
			t.Errorf("expected min, got %v", north.Expand.Reduction)
		}
	})

	t.Run("invalid edits are rejected", func(t *testing.T) {
		if _, err := s.Delete(testutil.Total, nil); !errors.Is(err, types.ErrInvalid) {
			t.Errorf("deleting root: expected ErrInvalid, got %v", err)
		}
		if _, err := s.Rename(testutil.North, "A"); !errors.Is(err, types.ErrInvalid) {
			t.Errorf("merging composite: expected ErrInvalid, got %v", err)
		}
		if err := s.UpdateReduction(testutil.A, types.Sum); !errors.Is(err, types.ErrInvalid) {
			t.Errorf("reduction on leaf: expected ErrInvalid, got %v", err)
		}
		if _, err := s.AddChild(99); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("unknown parent: expected ErrNotFound, got %v", err)
		}
	})

	if err := s.Check(); err != nil {
		t.Errorf("invariants broken after edits: %v", err)
	}
}

func TestToggleExpandable(t *testing.T) {
	ctx := context.Background()

	t.Run("leaf to composite needs no confirmation", func(t *testing.T) {
		asked := 0
		s, _ := loadedSession(t, WithConfirmer(ConfirmerFunc(func(context.Context, Prompt) (bool, error) {
			asked++
			return true, nil
		})))
		result, err := s.ToggleExpandable(ctx, testutil.A)
		if err != nil {
			t.Fatal(err)
		}
		if !result.Composite || asked != 0 {
			t.Errorf("expected composite without prompt, got %+v after %d prompts", result, asked)
		}
	})

	t.Run("confirmed clear", func(t *testing.T) {
		var prompt Prompt
		s, _ := loadedSession(t, WithConfirmer(ConfirmerFunc(func(_ context.Context, p Prompt) (bool, error) {
			prompt = p
			return true, nil
		})))
		result, err := s.ToggleExpandable(ctx, testutil.North)
		if err != nil {
			t.Fatal(err)
		}
		if result.Composite {
			t.Error("expected North to become a leaf")
		}
		if diff := cmp.Diff([]uint64{testutil.A, testutil.B}, result.Detached); diff != "" {
			t.Errorf("detached mismatch (-want +got):\n%s", diff)
		}
		if prompt.Message == "" || prompt.ConfirmLabel == "" {
			t.Errorf("expected a filled prompt, got %+v", prompt)
		}
		if err := s.Check(); err != nil {
			t.Error(err)
		}
	})

	t.Run("declined", func(t *testing.T) {
		s, _ := loadedSession(t, WithConfirmer(ConfirmerFunc(func(context.Context, Prompt) (bool, error) {
			return false, nil
		})))
		_, err := s.ToggleExpandable(ctx, testutil.North)
		if !errors.Is(err, types.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
		north, _ := s.Item(testutil.North)
		if !north.IsComposite() {
			t.Error("declined toggle changed the item")
		}
	})

	t.Run("no confirmer declines", func(t *testing.T) {
		s, _ := loadedSession(t)
		if _, err := s.ToggleExpandable(ctx, testutil.North); !errors.Is(err, types.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	})

	t.Run("item changed while prompting", func(t *testing.T) {
		var s *Session
		s, _ = loadedSession(t, WithConfirmer(ConfirmerFunc(func(context.Context, Prompt) (bool, error) {
			// The lock is free while the user decides
			if _, err := s.AddChild(testutil.North); err != nil {
				t.Errorf("edit during prompt: %v", err)
			}
			return true, nil
		})))
		_, err := s.ToggleExpandable(ctx, testutil.North)
		if !errors.Is(err, types.ErrStale) {
			t.Fatalf("expected ErrStale, got %v", err)
		}
		north, _ := s.Item(testutil.North)
		if !north.IsComposite() || len(north.Expand.Children) != 3 {
			t.Errorf("stale toggle must not apply, got %+v", north.Expand)
		}
	})

	t.Run("document reloaded while prompting", func(t *testing.T) {
		var s *Session
		s, _ = loadedSession(t, WithConfirmer(ConfirmerFunc(func(ctx context.Context, _ Prompt) (bool, error) {
			if err := s.Load(ctx, testutil.DocumentPath); err != nil {
				t.Errorf("reload during prompt: %v", err)
			}
			return true, nil
		})))
		if _, err := s.ToggleExpandable(ctx, testutil.North); !errors.Is(err, types.ErrStale) {
			t.Errorf("expected ErrStale, got %v", err)
		}
	})

	t.Run("confirmer error", func(t *testing.T) {
		s, _ := loadedSession(t, WithConfirmer(ConfirmerFunc(func(context.Context, Prompt) (bool, error) {
			return false, context.Canceled
		})))
		_, err := s.ToggleExpandable(ctx, testutil.North)
		if !errors.Is(err, types.ErrCancelled) || !errors.Is(err, context.Canceled) {
			t.Errorf("expected ErrCancelled wrapping context.Canceled, got %v", err)
		}
	})

	t.Run("root cannot become a leaf", func(t *testing.T) {
		s, _ := loadedSession(t, WithConfirmer(ConfirmerFunc(func(context.Context, Prompt) (bool, error) {
			return true, nil
		})))
		if _, err := s.ToggleExpandable(ctx, testutil.Total); !errors.Is(err, types.ErrInvalid) {
			t.Errorf("expected ErrInvalid, got %v", err)
		}
	})
}

func TestSave(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s, _ := loadedSession(t)
		if _, err := s.AddChild(testutil.Bonus); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx); err != nil {
			t.Fatal(err)
		}

		// A second save after the first must not be considered stale
		if err := s.UpdateReduction(testutil.Bonus, types.Min); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx); err != nil {
			t.Fatalf("second save: %v", err)
		}

		want, err := s.Document()
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Load(ctx, testutil.DocumentPath); err != nil {
			t.Fatal(err)
		}
		got, err := s.Document()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("document changed across save/load (-want +got):\n%s", diff)
		}
		if got.Items[3].Algorithm != "min" || len(got.Items[3].Children) != 3 {
			t.Errorf("edits were not persisted: %+v", got.Items[3])
		}
	})

	t.Run("file changed on disk", func(t *testing.T) {
		s, mfs := loadedSession(t)
		testutil.WriteFile(t, mfs, testutil.DocumentPath, &types.Document{RootName: "Other", Items: []types.DocumentItem{}})

		if err := s.Save(ctx); !errors.Is(err, types.ErrStale) {
			t.Fatalf("expected ErrStale, got %v", err)
		}

		// SaveAs overwrites regardless
		if err := s.SaveAs(ctx, testutil.DocumentPath); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx); err != nil {
			t.Errorf("save after SaveAs: %v", err)
		}
	})

	t.Run("save as through picker", func(t *testing.T) {
		picker := &fakePicker{save: []string{"copy.yaml.zst"}}
		s, mfs := loadedSession(t, WithFilePicker(picker))

		if err := s.SaveAs(ctx, ""); err != nil {
			t.Fatal(err)
		}
		if !mfs.FileExists("copy.yaml.zst") {
			t.Error("expected copy.yaml.zst to be written")
		}
		if diff := cmp.Diff([]string{testutil.DocumentPath}, picker.suggest); diff != "" {
			t.Errorf("expected current path as suggestion (-want +got):\n%s", diff)
		}
		if path, _ := s.DocumentPath(); path != "copy.yaml.zst" {
			t.Errorf("expected current path to follow SaveAs, got %s", path)
		}
	})

	t.Run("create refuses to clobber", func(t *testing.T) {
		files, _ := testutil.MockBudgetFiles(t)
		s := NewSession(WithFiles(files))
		if err := s.Create(testutil.DocumentPath, "Fresh"); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx); !errors.Is(err, types.ErrStale) {
			t.Errorf("expected ErrStale, got %v", err)
		}

		if err := s.Create("fresh.json", "Fresh"); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx); err != nil {
			t.Errorf("saving new document: %v", err)
		}
		if err := s.Create("x.json", " padded "); !errors.Is(err, types.ErrInvalid) {
			t.Errorf("expected ErrInvalid for bad root name, got %v", err)
		}
	})
}

func TestCalculate(t *testing.T) {
	ctx := context.Background()

	t.Run("through picker", func(t *testing.T) {
		picker := &fakePicker{open: []string{testutil.DataPath}}
		s, _ := loadedSession(t, WithFilePicker(picker))

		calc, err := s.Calculate(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(testutil.BudgetValues(), calc.Values); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
		if calc.DataPath != testutil.DataPath || calc.RunID != "" {
			t.Errorf("unexpected calculation metadata: %+v", calc)
		}

		values, err := s.Values([]uint64{testutil.Total, testutil.South})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(map[uint64]float64{testutil.Total: 25, testutil.South: 18}, values); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("picker dismissed", func(t *testing.T) {
		s, _ := loadedSession(t, WithFilePicker(&fakePicker{}))
		_, err := s.Calculate(ctx)
		if !errors.Is(err, types.ErrCancelled) || !errors.Is(err, ErrNothingSelected) {
			t.Errorf("expected ErrCancelled wrapping ErrNothingSelected, got %v", err)
		}
	})

	t.Run("missing leaf keeps previous values", func(t *testing.T) {
		s, mfs := loadedSession(t)
		if _, err := s.CalculateFile(ctx, testutil.DataPath); err != nil {
			t.Fatal(err)
		}
		testutil.WriteFile(t, mfs, "partial.json", types.DataTable{"A": 100})

		if _, err := s.CalculateFile(ctx, "partial.json"); !errors.Is(err, types.ErrMissingInput) {
			t.Fatalf("expected ErrMissingInput, got %v", err)
		}
		values, err := s.Values([]uint64{testutil.Total, testutil.A})
		if err != nil {
			t.Fatal(err)
		}
		if values[testutil.Total] != 25 || values[testutil.A] != 4 {
			t.Errorf("failed run overwrote values: %v", values)
		}
	})

	t.Run("values before calculating", func(t *testing.T) {
		s, _ := loadedSession(t)
		if _, err := s.Values([]uint64{testutil.Total}); !errors.Is(err, types.ErrMissingInput) {
			t.Errorf("expected ErrMissingInput, got %v", err)
		}
		if _, err := s.Values([]uint64{42}); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("recorded in history", func(t *testing.T) {
		ledger, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatal(err)
		}
		defer ledger.Close()

		s, _ := loadedSession(t, WithHistory(ledger))
		calc, err := s.CalculateFile(ctx, testutil.DataPath)
		if err != nil {
			t.Fatal(err)
		}
		if calc.RunID == "" {
			t.Fatal("expected a run id")
		}

		run, err := ledger.Show(ctx, calc.RunID)
		if err != nil {
			t.Fatal(err)
		}
		if run.Document != testutil.DocumentPath || run.Data != testutil.DataPath || run.RootValue != 25 {
			t.Errorf("unexpected run: %+v", run)
		}
		if len(run.Values) != 7 || run.Values[0].Name != "Total" {
			t.Errorf("unexpected run values: %+v", run.Values)
		}
	})
}

func TestTemplate(t *testing.T) {
	ctx := context.Background()
	s, mfs := loadedSession(t, WithFilePicker(&fakePicker{save: []string{"picked.yaml"}}))

	table, err := s.Template()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(types.DataTable{"A": 0, "B": 0, "C": 0}, table); diff != "" {
		t.Errorf("template mismatch (-want +got):\n%s", diff)
	}

	path, err := s.WriteTemplate(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	content, ok := mfs.GetFileContent(path)
	if path != "picked.yaml" || !ok {
		t.Fatalf("expected picked.yaml to be written, got %q", path)
	}
	if !strings.Contains(string(content), "A: 0") {
		t.Errorf("unexpected template content:\n%s", content)
	}

	if _, err := s.WriteTemplate(ctx, ""); !errors.Is(err, types.ErrCancelled) {
		t.Errorf("expected ErrCancelled once the picker is dismissed, got %v", err)
	}
}

func TestSelectDocument(t *testing.T) {
	ctx := context.Background()

	s := NewSession(WithFilePicker(&fakePicker{open: []string{"budget.json"}}))
	path, err := s.SelectDocument(ctx)
	if err != nil || path != "budget.json" {
		t.Fatalf("expected budget.json, got %q (%v)", path, err)
	}
	if _, err := s.DocumentPath(); !errors.Is(err, types.ErrNotFound) {
		t.Error("selecting must not load the document")
	}

	broken := NewSession(WithFilePicker(&fakePicker{err: errors.New("display unavailable")}))
	if _, err := broken.SelectDocument(ctx); !errors.Is(err, types.ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}

	if _, err := NewSession().SelectDocument(ctx); !errors.Is(err, types.ErrCancelled) {
		t.Errorf("expected ErrCancelled without a picker, got %v", err)
	}
}

func TestOutlineAndCheck(t *testing.T) {
	s, _ := loadedSession(t)

	out, err := s.Outline(formats.PlainText)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Total [sum]\n  North [average]\n") {
		t.Errorf("unexpected outline:\n%s", out)
	}

	if err := s.Check(); err != nil {
		t.Errorf("budget should pass checks: %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := loadedSession(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.AddChild(testutil.Bonus); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := s.CalculateFile(ctx, testutil.DataPath); err != nil && !errors.Is(err, types.ErrMissingInput) {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	bonus, _ := s.Item(testutil.Bonus)
	if len(bonus.Expand.Children) != 22 {
		t.Errorf("expected 22 children, got %d", len(bonus.Expand.Children))
	}
	if err := s.Check(); err != nil {
		t.Error(err)
	}
}

// diskSession loads the budget document from a real temp dir so that file
// locks are taken with flock
func diskSession(t *testing.T) (*Session, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), testutil.DocumentPath)
	files := storage.New()
	if _, err := files.SaveDocument(context.Background(), path, testutil.Budget()); err != nil {
		t.Fatalf("writing document: %v", err)
	}
	s := NewSession(WithFiles(files))
	if err := s.Load(context.Background(), path); err != nil {
		t.Fatalf("loading document: %v", err)
	}
	return s, path
}

// holdFileLock takes the document's file lock as another process would
func holdFileLock(t *testing.T, path string) *flock.Flock {
	t.Helper()
	held := flock.New(path + ".lock")
	if err := held.Lock(); err != nil {
		t.Fatalf("locking %s: %v", path, err)
	}
	return held
}

func TestSaveDoesNotBlockQueries(t *testing.T) {
	s, path := diskSession(t)
	ctx := context.Background()

	held := holdFileLock(t, path)
	done := make(chan error, 1)
	go func() { done <- s.Save(ctx) }()

	// Let Save reach the file lock
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	if _, err := s.Item(types.RootID); err != nil {
		t.Fatalf("query during save: %v", err)
	}
	if _, err := s.Items(); err != nil {
		t.Fatalf("query during save: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("queries waited %v while Save waited for the file lock", elapsed)
	}

	if err := held.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("save after the file lock was released: %v", err)
	}

	// The recorded digest matches the file, so a second save succeeds
	if err := s.Save(ctx); err != nil {
		t.Errorf("second save: %v", err)
	}
}

func TestSaveWithEditsDuringWrite(t *testing.T) {
	s, path := diskSession(t)
	ctx := context.Background()

	held := holdFileLock(t, path)
	done := make(chan error, 1)
	go func() { done <- s.Save(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if _, err := s.Rename(testutil.A, "Alpha"); err != nil {
		t.Fatalf("edit during save: %v", err)
	}
	_ = held.Unlock()
	if err := <-done; err != nil {
		t.Fatalf("save: %v", err)
	}

	// The edit stays in memory and goes out with the next save
	if err := s.Save(ctx); err != nil {
		t.Fatalf("saving the edit: %v", err)
	}
	reloaded := NewSession()
	if err := reloaded.Load(ctx, path); err != nil {
		t.Fatal(err)
	}
	if _, err := reloaded.Resolve("Alpha"); err != nil {
		t.Errorf("edit made during the first save was lost: %v", err)
	}
}

func TestSaveStaleWhenDocumentReplaced(t *testing.T) {
	s, path := diskSession(t)
	ctx := context.Background()

	other := filepath.Join(t.TempDir(), "other.json")
	if _, err := storage.New().SaveDocument(ctx, other, testutil.Budget()); err != nil {
		t.Fatal(err)
	}

	held := holdFileLock(t, path)
	done := make(chan error, 1)
	go func() { done <- s.Save(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := s.Load(ctx, other); err != nil {
		t.Fatalf("loading another document during save: %v", err)
	}
	_ = held.Unlock()

	if err := <-done; !errors.Is(err, types.ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
	if got, _ := s.DocumentPath(); got != other {
		t.Errorf("expected %s to stay open, got %s", other, got)
	}
	if err := s.Save(ctx); err != nil {
		t.Errorf("saving the newly loaded document: %v", err)
	}
}
