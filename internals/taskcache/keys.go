package taskcache

import "github.com/hatchery-io/hatchery/internals/task"

// Key layout. Documents are plain keys with a TTL; the secondary indexes are
// sorted sets scored by creation/update time so listings come back ordered
// without touching the durable store.
const keyPrefix = "hatchery:"

func taskKey(id string) string { return keyPrefix + "task:" + id }

func userIndexKey(userID string) string { return keyPrefix + "tasks:user:" + userID }

func statusIndexKey(status task.Status) string {
	return keyPrefix + "tasks:status:" + string(status)
}

func orgIndexKey(orgID string) string { return keyPrefix + "tasks:org:" + orgID }

func treeKey(treeID string) string { return keyPrefix + "task:tree:" + treeID }

func triggerHistoryKey(taskID string) string { return keyPrefix + "trigger:history:" + taskID }
