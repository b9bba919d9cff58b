package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				nodes JSONB NOT NULL,
				edges JSONB NOT NULL,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				trigger_data JSONB,
				node_statuses JSONB NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_created_at ON executions(created_at);

			CREATE TABLE execution_logs (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL,
				node_id VARCHAR(255) NOT NULL DEFAULT '',
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
				level VARCHAR(20) NOT NULL,
				message TEXT NOT NULL,
				metadata JSONB
			);

			CREATE INDEX idx_execution_logs_execution_id ON execution_logs(execution_id);
			CREATE INDEX idx_execution_logs_node_id ON execution_logs(execution_id, node_id);
		`,
	}
}
