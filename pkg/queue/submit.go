package queue

import (
	"context"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// submitScript writes a task's hash fields then pushes its id onto the
// priority lane, atomically, so that a task is never discoverable in
// storage without also being discoverable on its lane (and vice
// versa) — spec.md §4.2's "after return, the task is durably
// discoverable by any worker" guarantee.
//
// KEYS[1] = task:{id}
// KEYS[2] = queue:{q}:p{n}
// ARGV    = flattened field/value pairs followed by the task id to push
const submitScript = `
local task_key = KEYS[1]
local lane_key = KEYS[2]
local id = ARGV[#ARGV]
for i = 1, #ARGV - 1, 2 do
	redis.call('HSET', task_key, ARGV[i], ARGV[i + 1])
end
redis.call('LPUSH', lane_key, id)
return 1
`

// Submit persists a task record and pushes it onto its priority lane.
func (s *Service) Submit(ctx context.Context, t tasks.Task) error {
	fields, err := t.ToFields()
	if err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindSerialization, err, "encode task")
	}
	args := make([]interface{}, 0, len(fields)*2+1)
	for k, v := range fields {
		args = append(args, k, v)
	}
	args = append(args, t.ID)

	laneKey := tasks.LaneKey(t.Queue, t.Priority)
	if _, err := s.store.EvalScript(ctx, submitScript, []string{tasks.TaskKey(t.ID), laneKey}, args...); err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "submit task")
	}
	if err := s.registerQueue(ctx, t.Queue); err != nil {
		s.log.Warn().Err(err).Str("queue", t.Queue).Msg("failed to register queue")
	}
	return nil
}

// SubmitBatch writes every record then pushes every id onto its lane in
// one atomic script, preserving submission order within each
// (queue, priority) lane. Per DESIGN.md's resolution of spec.md §9(b),
// submit_batch is all-or-nothing: a serialization failure anywhere in
// the batch aborts the whole call before any Redis round trip.
func (s *Service) SubmitBatch(ctx context.Context, batch []tasks.Task) error {
	if len(batch) == 0 {
		return nil
	}
	keys := make([]string, 0, len(batch)+1)
	// KEYS[1..n] = task:{id} for each task, KEYS[n+1..] = distinct lane keys
	laneIndex := map[string]int{}
	laneOrder := []string{}
	for _, t := range batch {
		keys = append(keys, tasks.TaskKey(t.ID))
	}
	for _, t := range batch {
		lane := tasks.LaneKey(t.Queue, t.Priority)
		if _, ok := laneIndex[lane]; !ok {
			laneIndex[lane] = len(laneOrder)
			laneOrder = append(laneOrder, lane)
		}
	}
	keys = append(keys, laneOrder...)

	// ARGV layout: for each task, "<lane_index> <n_fields> field val field val ... id"
	var args []interface{}
	for _, t := range batch {
		fields, err := t.ToFields()
		if err != nil {
			return goqueueerrors.Wrap(goqueueerrors.KindSerialization, err, "encode task")
		}
		lane := tasks.LaneKey(t.Queue, t.Priority)
		args = append(args, laneIndex[lane], len(fields)*2)
		for k, v := range fields {
			args = append(args, k, v)
		}
		args = append(args, t.ID)
	}
	args = append([]interface{}{len(batch)}, args...)

	if _, err := s.store.EvalScript(ctx, submitBatchScript, keys, args...); err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "submit batch")
	}

	seen := map[string]bool{}
	for _, t := range batch {
		if seen[t.Queue] {
			continue
		}
		seen[t.Queue] = true
		if err := s.registerQueue(ctx, t.Queue); err != nil {
			s.log.Warn().Err(err).Str("queue", t.Queue).Msg("failed to register queue")
		}
	}
	return nil
}

// submitBatchScript mirrors submitScript but loops over N tasks, each
// addressing its own task:{id} key (KEYS[1..n]) and one of the
// deduplicated lane keys (KEYS[n+1..]) by index, so every write in the
// batch commits as a single Lua invocation.
const submitBatchScript = `
local n_tasks = tonumber(ARGV[1])
local pos = 2
local lane_offset = n_tasks
for i = 1, n_tasks do
	local lane_idx = tonumber(ARGV[pos])
	local n_fields = tonumber(ARGV[pos + 1])
	pos = pos + 2
	local task_key = KEYS[i]
	for j = 1, n_fields, 2 do
		redis.call('HSET', task_key, ARGV[pos + j - 1], ARGV[pos + j])
	end
	pos = pos + n_fields
	local id = ARGV[pos]
	pos = pos + 1
	local lane_key = KEYS[lane_offset + lane_idx + 1]
	redis.call('LPUSH', lane_key, id)
end
return n_tasks
`
