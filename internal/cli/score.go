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
	"strings"

	"github.com/spf13/cobra"

	"github.com/griffinhampton/mailflow/internal/gmail"
	"github.com/griffinhampton/mailflow/internal/models"
	"github.com/griffinhampton/mailflow/internal/triage"
)

type scoreOutput struct {
	triage.Assessment
	Junk      bool             `json:"junk"`
	RiskLevel triage.RiskLevel `json:"riskLevel"`
}

func newScoreCmd() *cobra.Command {
	var (
		from, subject, body string
		labels              []string
		attachment          bool
		userEmail, username string
		heuristics          string
		fromFile            bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one message for priority and phishing risk",
		Long: `Score runs the digest triage on a single message described by flags, or
on a message JSON document (--json, read from a file argument or stdin).

  mailflowctl score --from 'PayPal <security@pay-pal.biz>' \
      --subject 'URGENT: verify your account' --body 'Log in to paypal now'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := triage.DefaultTables()
			if heuristics != "" {
				var err error
				if tables, err = triage.LoadTables(heuristics); err != nil {
					return err
				}
			}

			var email models.Email
			if fromFile {
				var err error
				if email, err = decodeFile[models.Email](cmd, args); err != nil {
					return err
				}
			} else {
				email = models.Email{
					From:          from,
					Subject:       subject,
					BodyText:      body,
					HasAttachment: attachment,
					Labels:        labels,
				}
			}
			if email.FromEmail == "" {
				email.FromEmail = strings.ToLower(gmail.ParseAddress(email.From))
			}

			a := triage.NewScorer(tables).Score(email, triage.UserContext{Email: userEmail, Username: username})
			return printJSON(cmd.OutOrStdout(), scoreOutput{
				Assessment: a,
				Junk:       a.Junk,
				RiskLevel:  a.Phishing.Level(),
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&from, "from", "", "From header value")
	f.StringVar(&subject, "subject", "", "message subject")
	f.StringVar(&body, "body", "", "plain-text body")
	f.StringSliceVar(&labels, "labels", nil, "provider labels, e.g. IMPORTANT,CATEGORY_PROMOTIONS")
	f.BoolVar(&attachment, "attachment", false, "message has an attachment")
	f.StringVar(&userEmail, "user-email", "", "mailbox owner's address")
	f.StringVar(&username, "username", "", "mailbox owner's username")
	f.StringVar(&heuristics, "heuristics", "", "YAML file overriding the triage tables")
	f.BoolVar(&fromFile, "json", false, "read the message as JSON instead of flags")
	return cmd
}
