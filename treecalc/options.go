package treecalc

import (
	"log/slog"
	"math/rand/v2"

	"github.com/arthur-debert/treecalc/treecalc/codec"
	"github.com/arthur-debert/treecalc/treecalc/history"
	"github.com/arthur-debert/treecalc/treecalc/storage"
)

// Option configures a Session
type Option func(*Session)

// WithFiles sets the document storage
func WithFiles(files *storage.Files) Option {
	return func(s *Session) {
		s.files = files
	}
}

// WithConfirmer sets the collaborator asked before destructive toggles.
// Without one every confirmation is declined.
func WithConfirmer(c Confirmer) Option {
	return func(s *Session) {
		s.confirmer = c
	}
}

// WithFilePicker sets the collaborator used when a command needs a path
func WithFilePicker(p FilePicker) Option {
	return func(s *Session) {
		s.picker = p
	}
}

// WithHistory records every successful calculation in the ledger
func WithHistory(l *history.Ledger) Option {
	return func(s *Session) {
		s.ledger = l
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithRandomReductions assigns a random reduction to composites loaded without one
func WithRandomReductions(rng *rand.Rand) Option {
	return func(s *Session) {
		s.codecOpts = append(s.codecOpts, codec.WithRandomReductions(rng))
	}
}

// WithMaxSteps overrides the save walk bound
func WithMaxSteps(n int) Option {
	return func(s *Session) {
		s.codecOpts = append(s.codecOpts, codec.WithMaxSteps(n))
	}
}
