package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/interview-cli/internal/interview"
)

var (
	chatToken       string
	chatInteractive bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a founder message to an interview and print the analyst's reply",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatToken == "" {
			return eris.New("--token is required")
		}
		if !chatInteractive && len(args) == 0 {
			return eris.New("a message argument is required unless --interactive is set")
		}

		ctx := cmd.Context()
		env, err := initInterview(ctx, "chat")
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if !chatInteractive {
			_, err := sendTurn(ctx, env.Service, out, chatToken, args[0])
			return err
		}
		return chatLoop(ctx, env.Service, cmd.InOrStdin(), out, chatToken)
	},
}

// sendTurn runs one turn and prints the reply. It reports whether the
// interview is complete.
func sendTurn(ctx context.Context, svc *interview.Service, out io.Writer, token, message string) (bool, error) {
	resp, err := svc.Chat(ctx, token, message)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(out, "\n%s\n", resp.Message)
	if resp.IsComplete {
		fmt.Fprintf(out, "\n[interview complete: %d topics covered]\n", len(resp.GatheredFields))
	} else {
		fmt.Fprintf(out, "\n[%d covered, %d to go]\n", len(resp.GatheredFields), len(resp.MissingFields))
	}
	return resp.IsComplete, nil
}

// chatLoop reads founder messages line by line until EOF, "/quit" or
// completion.
func chatLoop(ctx context.Context, svc *interview.Service, in io.Reader, out io.Writer, token string) error {
	sess, err := svc.Session(ctx, token)
	if err != nil {
		return err
	}
	if n := len(sess.State.Transcript); n > 0 {
		fmt.Fprintln(out, sess.State.Transcript[n-1].Text)
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "/quit" {
			return nil
		}
		if line == "" {
			continue
		}

		done, err := sendTurn(ctx, svc, out, token, line)
		if errors.Is(err, interview.ErrTurnInProgress) {
			fmt.Fprintln(out, "another message is still being processed, try again")
			continue
		}
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func init() {
	chatCmd.Flags().StringVar(&chatToken, "token", "", "interview token")
	chatCmd.Flags().BoolVar(&chatInteractive, "interactive", false, "read messages from stdin until the interview completes")
	rootCmd.AddCommand(chatCmd)
}
