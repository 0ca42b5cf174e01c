package commands

import (
	"context"
	"io"
	"os"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sem/yamlio"
)

// openStore loads the configuration, opens the database and installs the
// YAML condition parser. The returned func closes the connection.
func openStore(ctx context.Context) (*storage.Store, func(), error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "configuration validation failed")
	}

	store, conn, err := sem.Open(ctx, cfg, nil, logger.ComponentLogger("store"))
	if err != nil {
		return nil, nil, err
	}
	store.SetParser(yamlio.NewParser(store.Catalog()))
	return store, func() { conn.Close() }, nil
}

// readInput reads a file argument; "-" is standard input
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return b, nil
}

// pageArg reads a title given on the command line
func pageArg(arg string) (types.EntityRef, error) {
	ref := yamlio.ParsePage(arg, types.NSMain)
	if ref.Title == "" {
		return types.EntityRef{}, errors.NewInvalidRequestError("%q is not a page title", arg)
	}
	return ref, nil
}
