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

// mailflowctl is the operator command line for mailflow.
//
// Usage:
//
//	mailflowctl compile workflow.json
//	mailflowctl score --from 'PayPal <security@pay-pal.biz>' --subject 'Verify now'
//	mailflowctl poll
//	mailflowctl run --workflow 12 --user 3
//	mailflowctl digest --user 3 [--contains invoice | --attachment]
package main

import (
	"os"

	"github.com/griffinhampton/mailflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
