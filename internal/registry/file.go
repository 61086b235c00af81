// Package registry loads issue catalogs from files and from Notion.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/interview-cli/internal/model"
)

// catalogDoc is the file layout when issues are nested under a key.
type catalogDoc struct {
	Issues []model.Issue `json:"issues" yaml:"issues"`
}

// LoadCatalogFile reads a catalog from a JSON or YAML file. The document is
// either a bare list of issues or an object with an "issues" list.
func LoadCatalogFile(path string) (*model.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalog file")
	}

	issues, err := parseIssues(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", filepath.Base(path))
	}
	if len(issues) == 0 {
		return nil, eris.Errorf("registry: %s has no issues", filepath.Base(path))
	}

	c, err := model.NewCatalog(issues)
	if err != nil {
		return nil, eris.Wrap(err, "registry: validate catalog")
	}
	return c, nil
}

func parseIssues(data []byte, isJSON bool) ([]model.Issue, error) {
	trimmed := strings.TrimSpace(string(data))

	if isJSON {
		if strings.HasPrefix(trimmed, "[") {
			var issues []model.Issue
			err := json.Unmarshal(data, &issues)
			return issues, err
		}
		var doc catalogDoc
		err := json.Unmarshal(data, &doc)
		return doc.Issues, err
	}

	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "[") {
		var issues []model.Issue
		err := yaml.Unmarshal(data, &issues)
		return issues, err
	}
	var doc catalogDoc
	err := yaml.Unmarshal(data, &doc)
	return doc.Issues, err
}
