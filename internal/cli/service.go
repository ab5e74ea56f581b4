// Copyright (c) 2026 Griffin Hampton
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/griffinhampton/mailflow/internal/condition"
	"github.com/griffinhampton/mailflow/internal/digest"
	"github.com/griffinhampton/mailflow/internal/workflow"
)

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Check mail-triggered workflows once and run those with new mail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Poller.PollAndTrigger(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newRunCmd() *cobra.Command {
	var workflowID, userID int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow now, as its owner would from the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Runner.Run(cmd.Context(), workflow.RunRequest{
				WorkflowID: workflowID,
				UserID:     userID,
				Source:     workflow.SourceManual,
			})
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&workflowID, "workflow", 0, "workflow id (required)")
	cmd.Flags().Int64Var(&userID, "user", 0, "owning user id (required)")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newDigestCmd() *cobra.Command {
	var (
		userID   int64
		source   string
		contains string
		attach   bool
		limit    int
		lookup   bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Generate or show a user's login-window digest",
		Long: `Digest generates the user's digest for their current login window, or
returns the stored one if it already exists. --lookup only reads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cond, err := digestCondition(contains, attach)
			if err != nil {
				return err
			}

			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var res *digest.Result
			if lookup {
				res, err = a.Digests.Lookup(cmd.Context(), userID, source)
			} else {
				res, err = a.Digests.Generate(cmd.Context(), digest.Request{
					UserID:    userID,
					Source:    source,
					Condition: cond,
					Limit:     limit,
				})
			}
			if err != nil {
				return err
			}
			if res == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No digest stored for the current login window.")
				return nil
			}
			if res.PrioritySummary == nil {
				fmt.Fprintln(cmd.OutOrStdout(), res.SummaryText)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&userID, "user", 0, "user id (required)")
	f.StringVar(&source, "source", digest.SourceLoginWindowAll, "digest source key")
	f.StringVar(&contains, "contains", "", "only include messages containing this phrase")
	f.BoolVar(&attach, "attachment", false, "only include messages with attachments")
	f.IntVar(&limit, "limit", digest.MaxLimit, "maximum messages to list")
	f.BoolVar(&lookup, "lookup", false, "show the stored digest without generating")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// digestCondition builds the condition selected by the digest flags.
func digestCondition(contains string, attachment bool) (condition.Condition, error) {
	switch {
	case contains != "" && attachment:
		return condition.Condition{}, fmt.Errorf("--contains and --attachment are mutually exclusive")
	case attachment:
		return condition.HasAttachment(), nil
	case contains != "":
		raw, _ := json.Marshal(contains)
		return condition.Normalize(raw), nil
	default:
		return condition.None(), nil
	}
}
