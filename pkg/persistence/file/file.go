// Package file provides file-based persistence for workflows, executions and
// execution logs. Each record is a JSON document under the configured root
// directory. Updates are serialized with an in-process mutex, so this backend
// is suitable for a single process only.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/flowmesh/flowmesh/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root       string
	workflows  *WorkflowRepository
	executions *ExecutionRepository
	logs       *LogRepository
}

// NewPersistence creates a file store rooted at the given directory. A
// "file://" prefix is stripped so the backend can be selected by URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:       cleanRoot,
		workflows:  NewWorkflowRepository(cleanRoot),
		executions: NewExecutionRepository(cleanRoot),
		logs:       NewLogRepository(cleanRoot),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) Logs() persistence.LogRepository {
	return p.logs
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
