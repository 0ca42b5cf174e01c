// Package sem is the entry point of the semantic store.
//
// Facts are subject/property/value triples. A subject's facts are written
// as a whole (types.SemanticData) and stored as row diffs against one table
// per value kind, plus dedicated tables for fixed properties. Reads return
// lazily expanded stubs; queries compile condition trees into joins.
//
// The subpackages carry the pieces:
//
//	types     value objects (entity references, data items, fact sets)
//	handlers  per-kind row mapping
//	catalog   property to table resolution
//	ids       surrogate ids, redirects and table hashes
//	storage   writer, reader, setup and the Store facade
//	ask       condition compiler and query engine
package sem
