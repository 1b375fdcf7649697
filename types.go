package semindex

import (
	"github.com/jward/semindex/internal/discover"
	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/oracle"
	"github.com/jward/semindex/internal/store"
)

// Public type aliases for the internal types used by the Engine and
// QueryBuilder APIs. External consumers use these names; no conversion is
// needed.

type Store = store.Store
type File = store.File
type Run = store.Run
type Reference = store.Reference

type SemanticData = model.SemanticData
type DocumentSemantics = model.DocumentSemantics
type SymbolDefinition = model.SymbolDefinition
type SymbolReference = model.SymbolReference
type Format = model.Format

type DiscoverOptions = discover.Options

type Oracle = oracle.Oracle
type Declaration = oracle.Declaration
