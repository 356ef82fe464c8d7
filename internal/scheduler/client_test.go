package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	url string
}

func (c *testSchedulerConfig) GetRedisURL() string       { return c.url }
func (c *testSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c *testSchedulerConfig) GetAsynqQueueName() string { return "default" }
func (c *testSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&testSchedulerConfig{url: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func inspector(t *testing.T, mr *miniredis.Miniredis) *asynq.Inspector {
	t.Helper()
	ins := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = ins.Close() })
	return ins
}

func TestEnqueueReportGeneration(t *testing.T) {
	client, mr := newTestClient(t)
	checkID := uuid.NewString()

	err := client.EnqueueReportGeneration(context.Background(), ReportGeneratePayload{
		CheckID:     checkID,
		TriggeredBy: "scheduler",
	})
	if err != nil {
		t.Fatalf("EnqueueReportGeneration: %v", err)
	}

	tasks, err := inspector(t, mr).ListPendingTasks("default")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(tasks))
	}
	if tasks[0].Type != TaskReportGenerate {
		t.Fatalf("task type = %s, want %s", tasks[0].Type, TaskReportGenerate)
	}

	var payload ReportGeneratePayload
	if err := json.Unmarshal(tasks[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.CheckID != checkID {
		t.Fatalf("payload check id = %s, want %s", payload.CheckID, checkID)
	}
}

func TestEnqueueScheduleSpawnDeferred(t *testing.T) {
	client, mr := newTestClient(t)

	runAt := time.Now().Add(time.Hour)
	err := client.EnqueueScheduleSpawn(context.Background(), ScheduleSpawnPayload{
		ScheduleID: uuid.NewString(),
	}, runAt)
	if err != nil {
		t.Fatalf("EnqueueScheduleSpawn: %v", err)
	}

	tasks, err := inspector(t, mr).ListScheduledTasks("default")
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("scheduled tasks = %d, want 1", len(tasks))
	}
	if tasks[0].Type != TaskScheduleSpawn {
		t.Fatalf("task type = %s, want %s", tasks[0].Type, TaskScheduleSpawn)
	}
}
