package registry

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/pkg/notion"
)

// ActiveStatus is the Notion status an issue page needs to be loaded.
const ActiveStatus = "Active"

// LoadCatalogNotion queries the Notion issue database for all active issues
// and returns them as a validated catalog. Malformed pages are skipped.
func LoadCatalogNotion(ctx context.Context, client notion.Client, dbID string) (*model.Catalog, error) {
	pages, err := notion.QueryByStatus(ctx, client, dbID, ActiveStatus)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load issue catalog")
	}

	issues := make([]model.Issue, 0, len(pages))
	for _, p := range pages {
		iss, err := parseIssuePage(p)
		if err != nil {
			zap.L().Warn("registry: skipping malformed issue page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			continue
		}
		issues = append(issues, iss)
	}
	if len(issues) == 0 {
		return nil, eris.Errorf("registry: no active issues in database %s", dbID)
	}

	c, err := model.NewCatalog(issues)
	if err != nil {
		return nil, eris.Wrap(err, "registry: validate catalog")
	}

	zap.L().Info("registry: loaded issue catalog",
		zap.String("database", dbID),
		zap.Int("issues", c.Len()),
	)
	return c, nil
}

func parseIssuePage(p notionapi.Page) (model.Issue, error) {
	var iss model.Issue

	// Field (title)
	if prop, ok := p.Properties["Field"]; ok {
		switch tp := prop.(type) {
		case *notionapi.TitleProperty:
			iss.Field = plainText(tp.Title)
		case *notionapi.RichTextProperty:
			iss.Field = plainText(tp.RichText)
		}
	}

	// Question (rich_text)
	if prop, ok := p.Properties["Question"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			iss.Question = plainText(rtp.RichText)
		}
	}

	// Category (select)
	if prop, ok := p.Properties["Category"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			iss.Category = sp.Select.Name
		}
	}

	// Importance (number)
	if prop, ok := p.Properties["Importance"]; ok {
		if np, ok := prop.(*notionapi.NumberProperty); ok {
			iss.Importance = int(np.Number)
		}
	}

	// Status (status)
	if prop, ok := p.Properties["Status"]; ok {
		if sp, ok := prop.(*notionapi.StatusProperty); ok {
			iss.Status = sp.Status.Name
		}
	}

	iss.Field = strings.TrimSpace(iss.Field)
	iss.Question = strings.TrimSpace(iss.Question)
	if iss.Field == "" {
		return iss, eris.New("missing Field property")
	}
	if iss.Question == "" {
		return iss, eris.Errorf("issue %q has no Question", iss.Field)
	}
	return iss, nil
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}
