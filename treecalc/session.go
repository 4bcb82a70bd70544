// Package treecalc is the command surface over a single open document.
//
// A Session owns the item store of the current document. Queries take the
// session lock shared and edits take it exclusively, so a Session can be used
// from several goroutines. File I/O and user prompts happen outside the lock.
package treecalc

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"

	"github.com/arthur-debert/treecalc/internal/validation"
	"github.com/arthur-debert/treecalc/formats"
	"github.com/arthur-debert/treecalc/treecalc/codec"
	"github.com/arthur-debert/treecalc/treecalc/editor"
	"github.com/arthur-debert/treecalc/treecalc/eval"
	"github.com/arthur-debert/treecalc/treecalc/graph"
	"github.com/arthur-debert/treecalc/treecalc/history"
	"github.com/arthur-debert/treecalc/treecalc/storage"
	"github.com/arthur-debert/treecalc/types"
)

// Session holds the currently open document
type Session struct {
	locks     *storage.LockManager
	files     *storage.Files
	confirmer Confirmer
	picker    FilePicker
	ledger    *history.Ledger
	logger    *slog.Logger
	codecOpts []codec.Option

	// Guarded by locks
	store   *graph.Store
	path    string
	digest  storage.Digest
	tracked bool // digest reflects the file on disk
}

// Calculation is the outcome of a successful calculation run
type Calculation struct {
	Values   map[uint64]float64
	DataPath string
	RunID    string // Empty when no history ledger is configured
}

// NewSession creates a session with no document open
func NewSession(opts ...Option) *Session {
	s := &Session{locks: storage.NewLockManager()}
	for _, opt := range opts {
		opt(s)
	}

	if s.files == nil {
		s.files = storage.New()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.codecOpts = append(s.codecOpts, codec.WithLogger(s.logger))
	return s
}

// SelectDocument asks the file picker for a document to open and returns its
// path. It does not load the document.
func (s *Session) SelectDocument(ctx context.Context) (string, error) {
	path, err := s.pick(ctx, "select", func(p FilePicker) (string, error) {
		return p.PickOpen(ctx, "Open document")
	})
	if err != nil {
		return "", s.fail("select", err)
	}
	s.logger.Debug("document selected", "path", path)
	return path, nil
}

// Load reads the document at path and makes it current. On failure the
// previously open document stays current.
func (s *Session) Load(ctx context.Context, path string) error {
	const op = "load"

	doc, digest, err := s.files.LoadDocument(ctx, path)
	if err != nil {
		return s.fail(op, err)
	}
	store, err := codec.Decode(doc, s.codecOpts...)
	if err != nil {
		return s.fail(op, err)
	}

	s.open(store, path, digest)
	s.logger.Info("document loaded", "path", path, "items", store.Len())
	return nil
}

// Create starts a new document whose root is an empty composite. The first
// Save refuses to overwrite an existing file at path.
func (s *Session) Create(path, rootName string) error {
	const op = "create"

	if err := validation.ValidateName(rootName); err != nil {
		return s.fail(op, types.WrapError(op, types.ErrInvalid, err))
	}
	store, err := codec.Decode(&types.Document{
		RootName: rootName,
		Items:    []types.DocumentItem{{Name: rootName, Children: []string{}}},
	}, s.codecOpts...)
	if err != nil {
		return s.fail(op, err)
	}

	s.open(store, path, "")
	s.logger.Debug("document created", "path", path, "root", rootName)
	return nil
}

// DocumentPath returns the path of the current document
func (s *Session) DocumentPath() (string, error) {
	return storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() (string, error) {
		if s.store == nil {
			return "", types.Errorf("path", types.ErrNotFound, "no document loaded")
		}
		return s.path, nil
	})
}

// Item returns a copy of one item
func (s *Session) Item(id uint64) (*types.Item, error) {
	return storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() (*types.Item, error) {
		store, err := s.current("item")
		if err != nil {
			return nil, err
		}
		it, ok := store.Get(id)
		if !ok {
			return nil, types.Errorf("item", types.ErrNotFound, "no item with id %d", id)
		}
		return it, nil
	})
}

// Items returns copies of every item ordered by id
func (s *Session) Items() ([]*types.Item, error) {
	return storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() ([]*types.Item, error) {
		store, err := s.current("items")
		if err != nil {
			return nil, err
		}
		items := store.Items()
		out := make([]*types.Item, len(items))
		for i, it := range items {
			out[i] = it.Clone()
		}
		return out, nil
	})
}

// Resolve maps an item reference to an id. A reference is either a decimal
// id or an item name; names take precedence when both match.
func (s *Session) Resolve(ref string) (uint64, error) {
	return storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() (uint64, error) {
		store, err := s.current("resolve")
		if err != nil {
			return 0, err
		}
		if it, ok := store.FindByName(ref); ok {
			return it.ID, nil
		}
		if id, err := strconv.ParseUint(ref, 10, 64); err == nil && store.Has(id) {
			return id, nil
		}
		return 0, types.Errorf("resolve", types.ErrNotFound, "no item named %q", ref)
	})
}

// Rename renames an item. A leaf renamed to a taken name is merged into the
// item owning it, unless that item contains the leaf.
func (s *Session) Rename(id uint64, name string) (editor.RenameResult, error) {
	result, err := edit(s, "rename", func(store *graph.Store) (editor.RenameResult, error) {
		return editor.Rename(store, id, name)
	})
	if err != nil {
		return nil, err
	}
	switch r := result.(type) {
	case editor.MergedInto:
		s.logger.Debug("item merged", "removed", r.Removed, "survivor", r.Survivor, "affected", r.Affected)
	case editor.RenamedInPlace:
		s.logger.Debug("item renamed", "id", r.ID, "name", r.Name)
	}
	return result, nil
}

// Delete removes an item, or one occurrence of it from parent when it is shared
func (s *Session) Delete(id uint64, parent *uint64) (editor.DeleteResult, error) {
	result, err := edit(s, "delete", func(store *graph.Store) (editor.DeleteResult, error) {
		return editor.Delete(store, id, parent)
	})
	if err != nil {
		return editor.DeleteResult{}, err
	}
	s.logger.Debug("item deleted", "id", id, "removed", result.Removed != nil, "changed", result.Changed)
	return result, nil
}

// AddChild appends a new leaf to parent and returns its id
func (s *Session) AddChild(parent uint64) (uint64, error) {
	id, err := edit(s, "add", func(store *graph.Store) (uint64, error) {
		return editor.AddChild(store, parent)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("child added", "parent", parent, "id", id)
	return id, nil
}

// UpdateReduction sets the reduction of a composite
func (s *Session) UpdateReduction(id uint64, r types.Reduction) error {
	_, err := edit(s, "set-reduction", func(store *graph.Store) (struct{}, error) {
		return struct{}{}, editor.UpdateReduction(store, id, r)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("reduction updated", "id", id, "reduction", r)
	return nil
}

// ToggleExpandable switches an item between leaf and composite. Turning a
// composite with children into a leaf asks the Confirmer first; the session
// lock is not held while waiting for the answer, and the edit fails with
// ErrStale if the item changed in the meantime.
func (s *Session) ToggleExpandable(ctx context.Context, id uint64) (editor.ToggleResult, error) {
	const op = "toggle"

	var before *types.Item
	var snapshot *graph.Store
	var needsConfirm bool
	err := s.locks.Execute(storage.ReadOperation, func() error {
		store, err := s.current(op)
		if err != nil {
			return err
		}
		if needsConfirm, err = editor.NeedsConfirmation(store, id); err != nil {
			return err
		}
		before, _ = store.Get(id)
		snapshot = store
		return nil
	})
	if err != nil {
		return editor.ToggleResult{}, s.fail(op, err)
	}

	if needsConfirm {
		if err := s.confirm(ctx, op); err != nil {
			return editor.ToggleResult{}, s.fail(op, err)
		}
	}

	result, err := edit(s, op, func(store *graph.Store) (editor.ToggleResult, error) {
		current, ok := store.Get(id)
		if store != snapshot || !ok || !sameShape(before, current) {
			return editor.ToggleResult{}, types.Errorf(op, types.ErrStale, "item %d changed while waiting for confirmation", id)
		}
		return editor.ToggleExpandable(store, id, needsConfirm)
	})
	if err != nil {
		return editor.ToggleResult{}, err
	}
	s.logger.Debug("item toggled", "id", id, "composite", result.Composite, "detached", result.Detached)
	return result, nil
}

// Save writes the current document back to its path. It fails with ErrStale
// when the file was changed by someone else since it was loaded or saved.
// The file is written without holding the session lock.
func (s *Session) Save(ctx context.Context) error {
	const op = "save"

	snap, err := s.snapshot(op)
	if err != nil {
		return s.fail(op, err)
	}
	var opts []storage.SaveOption
	if snap.tracked {
		opts = append(opts, storage.IfDigest(snap.digest))
	}
	digest, err := s.files.SaveDocument(ctx, snap.path, snap.doc, opts...)
	if err != nil {
		return s.fail(op, err)
	}
	if err := s.commitSave(op, snap, snap.path, digest); err != nil {
		return s.fail(op, err)
	}
	s.logger.Info("document saved", "path", snap.path)
	return nil
}

// SaveAs writes the current document to path, overwriting any file there,
// and makes path the current document path. An empty path asks the file picker.
func (s *Session) SaveAs(ctx context.Context, path string) error {
	const op = "save"

	if path == "" {
		var err error
		path, err = s.pick(ctx, op, func(p FilePicker) (string, error) {
			current, _ := s.DocumentPath()
			return p.PickSave(ctx, "Save document", current)
		})
		if err != nil {
			return s.fail(op, err)
		}
	}

	snap, err := s.snapshot(op)
	if err != nil {
		return s.fail(op, err)
	}
	digest, err := s.files.SaveDocument(ctx, path, snap.doc)
	if err != nil {
		return s.fail(op, err)
	}
	if err := s.commitSave(op, snap, path, digest); err != nil {
		return s.fail(op, err)
	}
	s.logger.Info("document saved", "path", path)
	return nil
}

// saveSnapshot is the open document as it was when a save started
type saveSnapshot struct {
	store   *graph.Store
	doc     *types.Document
	path    string
	digest  storage.Digest
	tracked bool
}

func (s *Session) snapshot(op string) (saveSnapshot, error) {
	return storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() (saveSnapshot, error) {
		store, err := s.current(op)
		if err != nil {
			return saveSnapshot{}, err
		}
		doc, err := codec.Encode(store, s.codecOpts...)
		if err != nil {
			return saveSnapshot{}, err
		}
		return saveSnapshot{store: store, doc: doc, path: s.path, digest: s.digest, tracked: s.tracked}, nil
	})
}

// commitSave records the digest of a finished write. Edits made meanwhile stay
// unsaved in memory; a document replaced or moved meanwhile is left untouched.
func (s *Session) commitSave(op string, snap saveSnapshot, path string, digest storage.Digest) error {
	return s.locks.Execute(storage.WriteOperation, func() error {
		if s.store != snap.store || s.path != snap.path {
			return types.Errorf(op, types.ErrStale, "another document was opened while %s was written", path)
		}
		s.path = path
		s.digest = digest
		s.tracked = true
		return nil
	})
}

// Document returns the current document in its persisted form
func (s *Session) Document() (*types.Document, error) {
	doc, err := storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() (*types.Document, error) {
		store, err := s.current("document")
		if err != nil {
			return nil, err
		}
		return codec.Encode(store, s.codecOpts...)
	})
	if err != nil {
		return nil, s.fail("document", err)
	}
	return doc, nil
}

// Calculate asks the file picker for a data table and runs a calculation with it
func (s *Session) Calculate(ctx context.Context) (*Calculation, error) {
	path, err := s.pick(ctx, "calculate", func(p FilePicker) (string, error) {
		return p.PickOpen(ctx, "Open data table")
	})
	if err != nil {
		return nil, s.fail("calculate", err)
	}
	return s.CalculateFile(ctx, path)
}

// CalculateFile evaluates every item reachable from the root against the data
// table at path and stores the results. Nothing is stored if any item fails.
func (s *Session) CalculateFile(ctx context.Context, path string) (*Calculation, error) {
	const op = "calculate"

	table, err := s.files.LoadData(ctx, path)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if err := validation.ValidateDataTable(table); err != nil {
		return nil, s.fail(op, types.WrapError(op, types.ErrInvalid, err))
	}

	var run history.Run
	calc, err := storage.ExecuteWithResult(s.locks, storage.WriteOperation, func() (*Calculation, error) {
		store, err := s.current(op)
		if err != nil {
			return nil, err
		}
		values, err := eval.Calculate(store, table)
		if err != nil {
			return nil, err
		}
		eval.Apply(store, values)

		run = history.Run{Document: s.path, Data: path, RootValue: values[types.RootID]}
		for _, id := range sortedKeys(values) {
			it, _ := store.GetMut(id)
			run.Values = append(run.Values, history.Value{ItemID: id, Name: it.Name, Value: values[id]})
		}
		return &Calculation{Values: values, DataPath: path}, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	if s.ledger != nil {
		id, err := s.ledger.Record(ctx, run)
		if err != nil {
			// The values are already applied; a ledger failure does not undo them
			s.logger.Warn("recording calculation failed", "error", err)
		} else {
			calc.RunID = id
		}
	}

	s.logger.Info("calculation finished", "data", path, "items", len(calc.Values), "root", calc.Values[types.RootID], "run", calc.RunID)
	return calc, nil
}

// Values returns the last computed value of each id. Every id must exist and
// have been calculated.
func (s *Session) Values(ids []uint64) (map[uint64]float64, error) {
	const op = "values"

	values, err := storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() (map[uint64]float64, error) {
		store, err := s.current(op)
		if err != nil {
			return nil, err
		}
		out := make(map[uint64]float64, len(ids))
		for _, id := range ids {
			it, ok := store.GetMut(id)
			if !ok {
				return nil, types.Errorf(op, types.ErrNotFound, "no item with id %d", id)
			}
			if it.Value == nil {
				return nil, types.Errorf(op, types.ErrMissingInput, "item %q has not been calculated", it.Name)
			}
			out[id] = *it.Value
		}
		return out, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}
	return values, nil
}

// Template returns a data table listing every leaf with value zero
func (s *Session) Template() (types.DataTable, error) {
	table, err := storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() (types.DataTable, error) {
		store, err := s.current("template")
		if err != nil {
			return nil, err
		}
		return codec.Template(store), nil
	})
	if err != nil {
		return nil, s.fail("template", err)
	}
	return table, nil
}

// WriteTemplate saves Template to path. An empty path asks the file picker.
func (s *Session) WriteTemplate(ctx context.Context, path string) (string, error) {
	const op = "template"

	table, err := s.Template()
	if err != nil {
		return "", err
	}
	if path == "" {
		path, err = s.pick(ctx, op, func(p FilePicker) (string, error) {
			return p.PickSave(ctx, "Save data template", "template.json")
		})
		if err != nil {
			return "", s.fail(op, err)
		}
	}
	if err := s.files.SaveData(ctx, path, table); err != nil {
		return "", s.fail(op, err)
	}
	s.logger.Debug("template written", "path", path, "leaves", len(table))
	return path, nil
}

// Outline renders the current document as an indented outline
func (s *Session) Outline(style *formats.OutlineStyle) (string, error) {
	out, err := storage.ExecuteWithResult(s.locks, storage.ReadOperation, func() (string, error) {
		store, err := s.current("outline")
		if err != nil {
			return "", err
		}
		return formats.RenderOutline(store.GetMut, style)
	})
	if err != nil {
		return "", s.fail("outline", err)
	}
	return out, nil
}

// Check verifies the structural invariants of the current document and
// reports the first violation
func (s *Session) Check() error {
	const op = "check"

	err := s.locks.Execute(storage.ReadOperation, func() error {
		store, err := s.current(op)
		if err != nil {
			return err
		}
		root, ok := store.GetMut(types.RootID)
		if !ok {
			return types.Errorf(op, types.ErrCorrupt, "root item is missing")
		}
		if root.IsLeaf() {
			return types.Errorf(op, types.ErrCorrupt, "root item %q is a leaf", root.Name)
		}
		for _, check := range []func() error{store.CheckNames, store.CheckRefCounts, store.CheckAcyclic} {
			if err := check(); err != nil {
				return types.WrapError(op, types.ErrCorrupt, err)
			}
		}
		return nil
	})
	if err != nil {
		return s.fail(op, err)
	}
	return nil
}

// edit runs fn against the current store under the exclusive lock
func edit[T any](s *Session, op string, fn func(*graph.Store) (T, error)) (T, error) {
	result, err := storage.ExecuteWithResult(s.locks, storage.WriteOperation, func() (T, error) {
		store, err := s.current(op)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(store)
	})
	if err != nil {
		return result, s.fail(op, err)
	}
	return result, nil
}

// open makes store the current document. An empty digest means no file has
// been read, so the first Save must not overwrite one.
func (s *Session) open(store *graph.Store, path string, digest storage.Digest) {
	s.locks.Do(storage.WriteOperation, func() {
		s.store = store
		s.path = path
		s.digest = digest
		s.tracked = true
	})
}

// current must be called with the lock held
func (s *Session) current(op string) (*graph.Store, error) {
	if s.store == nil {
		return nil, types.Errorf(op, types.ErrNotFound, "no document loaded")
	}
	return s.store, nil
}

func (s *Session) confirm(ctx context.Context, op string) error {
	if s.confirmer == nil {
		return types.Errorf(op, types.ErrCancelled, "confirmation required but no confirmer is configured")
	}
	ok, err := s.confirmer.Confirm(ctx, clearChildrenPrompt)
	if err != nil {
		return types.WrapError(op, types.ErrCancelled, err)
	}
	if !ok {
		return types.Errorf(op, types.ErrCancelled, "clearing children was declined")
	}
	return nil
}

func (s *Session) pick(ctx context.Context, op string, fn func(FilePicker) (string, error)) (string, error) {
	if s.picker == nil {
		return "", types.Errorf(op, types.ErrCancelled, "no file picker is configured")
	}
	path, err := fn(s.picker)
	switch {
	case errors.Is(err, ErrNothingSelected):
		return "", types.WrapError(op, types.ErrCancelled, err)
	case err != nil:
		return "", types.WrapError(op, types.ErrIO, err)
	case path == "":
		return "", types.WrapError(op, types.ErrCancelled, ErrNothingSelected)
	}
	return path, nil
}

// fail tags untagged errors and logs the failure
func (s *Session) fail(op string, err error) error {
	if types.KindOf(err) == nil {
		err = types.WrapError(op, types.ErrIO, err)
	}
	s.logger.Warn("command failed", "op", op, "error", err)
	return err
}

func sameShape(a, b *types.Item) bool {
	if a.Name != b.Name || a.IsComposite() != b.IsComposite() {
		return false
	}
	if a.IsLeaf() {
		return true
	}
	return slices.Equal(a.Expand.Children, b.Expand.Children)
}

func sortedKeys(m map[uint64]float64) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
