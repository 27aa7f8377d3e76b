package transform

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
)

// DatasetFile is the name of the transient artifact inside a run directory.
const DatasetFile = "quotes.json"

// writeDataset writes records as an indented JSON array, in order, to
// dir/quotes.json and returns the file path. dir is created if needed.
func writeDataset(dir string, records []model.QuoteRecord) (string, error) {
	if records == nil {
		records = []model.QuoteRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", failure.New(failure.Serialization, err, "encode dataset")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", eris.Wrapf(err, "transform: create run dir %s", dir)
	}
	path := filepath.Join(dir, DatasetFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", failure.New(failure.Serialization, err, "write dataset")
	}
	return path, nil
}
