// Copyright 2025 Poiesic Systems
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


package ingestion

import (
	"context"
	"time"
)

// stage is one step of an ingestion run. Each stage reads what earlier
// stages left in the report and adds its own results.
type stage interface {
	// name identifies the stage in logs.
	name() string

	// run executes the stage.
	run(ctx context.Context, state *runState) error
}

// StageTiming records how long a stage of a run took.
type StageTiming struct {
	Stage   string
	Elapsed time.Duration
}
