package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/interview-cli/internal/interview"
	"github.com/sells-group/interview-cli/internal/model"
)

var (
	startCatalog string
	startNotion  bool
	startPerson  model.Participant
	startJSON    bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Create an interview session and print its opening message",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "start")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		catalog, err := loadCatalog(ctx, startCatalog, startNotion)
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}

		// Starting a session never calls the reasoning service.
		svc := interview.NewService(interview.ServiceDeps{
			Engine: interview.NewEngine(nil, interview.OptionsFromConfig(cfg.Interview), nil),
			Store:  st,
		})
		sess, err := svc.StartSession(ctx, startPerson, catalog)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if startJSON {
			return json.NewEncoder(out).Encode(viewOf(sess))
		}
		fmt.Fprintf(out, "token: %s\n\n", sess.Token)
		fmt.Fprintln(out, sess.State.Transcript[0].Text)
		return nil
	},
}

func init() {
	f := startCmd.Flags()
	f.StringVar(&startCatalog, "catalog", "catalogs/founder.yaml", "issue catalog file (json or yaml)")
	f.BoolVar(&startNotion, "notion", false, "load the catalog from the Notion catalog database")
	f.StringVar(&startPerson.FounderName, "founder", "", "founder name")
	f.StringVar(&startPerson.Email, "email", "", "founder email")
	f.StringVar(&startPerson.CompanyName, "company", "", "company name")
	f.StringVar(&startPerson.Sector, "sector", "", "company sector")
	f.StringVar(&startPerson.DealID, "deal", "", "deal id")
	f.BoolVar(&startJSON, "json", false, "print the session as JSON")
	rootCmd.AddCommand(startCmd)
}
