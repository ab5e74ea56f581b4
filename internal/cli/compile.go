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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/griffinhampton/mailflow/internal/workflow"
)

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile [graph.json]",
		Short: "Compile a workflow graph into its action list",
		Long: `Compile reads a builder graph (or a legacy action array) and prints the
ordered actions a run would execute. With no file argument the graph is
read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			actions, err := workflow.ParseActions(data)
			if err != nil {
				return err
			}
			if actions == nil {
				actions = []workflow.Action{}
			}
			return printJSON(cmd.OutOrStdout(), actions)
		},
	}
}

// readInput reads the named file, or stdin when no file is given.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

func decodeFile[T any](cmd *cobra.Command, args []string) (T, error) {
	var v T
	data, err := readInput(cmd, args)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode input: %w", err)
	}
	return v, nil
}
