package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/interview-cli/internal/export"
	"github.com/sells-group/interview-cli/internal/interview"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <token>",
	Short: "Write an interview's answers and transcript to an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := interview.NewService(interview.ServiceDeps{Store: st}).Session(ctx, args[0])
		if err != nil {
			return err
		}

		path := exportOut
		if path == "" {
			path = export.FileName(sess)
		}
		if err := export.Save(path, sess); err != nil {
			return err
		}

		zap.L().Info("exported interview", zap.String("token", sess.Token), zap.String("path", path))
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default interview_<company>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
