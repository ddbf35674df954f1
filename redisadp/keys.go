package redisadp

import (
	"net/url"
	"strings"

	"github.com/mashiike/taskengine/a2a"
)

// DefaultKeyPrefix is used when a config leaves KeyPrefix empty.
const DefaultKeyPrefix = "taskengine"

// keyspace builds the Redis keys of one tenant. Every caller-supplied
// component is query-escaped, so ':' and '/' only ever appear as separators.
// The tenant part is a hash tag: all keys of a tenant share one cluster slot,
// which multi-key transactions require.
//
//	<prefix>:{t:<tenant>}:task:<taskID>                      hash   data, updated, contextId, state, version
//	<prefix>:{t:<tenant>}:idx:tasks                          zset   taskID -> updated ms
//	<prefix>:{t:<tenant>}:idx:status:<state>                 zset
//	<prefix>:{t:<tenant>}:idx:ctx:<contextID>                zset
//	<prefix>:{t:<tenant>}:idx:ctx:<contextID>:status:<state> zset
//	<prefix>:{t:<tenant>}:pnc:<taskID>:<configID>            string config JSON
//	<prefix>:{t:<tenant>}:idx:pnc                            zset   <taskID>/<configID> -> updated ms
//	<prefix>:{t:<tenant>}:idx:pnc:task:<taskID>              zset
type keyspace struct {
	base string
}

func newKeyspace(prefix, tenant string) keyspace {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return keyspace{base: prefix + ":{t:" + escape(tenant) + "}"}
}

func escape(s string) string {
	return url.QueryEscape(s)
}

func (k keyspace) task(taskID string) string {
	return k.base + ":task:" + escape(taskID)
}

func (k keyspace) allTasks() string {
	return k.base + ":idx:tasks"
}

func (k keyspace) byStatus(state a2a.TaskState) string {
	return k.base + ":idx:status:" + escape(string(state))
}

func (k keyspace) byContext(contextID string) string {
	return k.base + ":idx:ctx:" + escape(contextID)
}

func (k keyspace) byContextStatus(contextID string, state a2a.TaskState) string {
	return k.byContext(contextID) + ":status:" + escape(string(state))
}

// taskIndexes returns every index a task with the given context and state belongs to.
func (k keyspace) taskIndexes(contextID string, state a2a.TaskState) []string {
	return []string{
		k.allTasks(),
		k.byStatus(state),
		k.byContext(contextID),
		k.byContextStatus(contextID, state),
	}
}

// listIndex picks the narrowest index serving the filters.
func (k keyspace) listIndex(contextID string, state a2a.TaskState) string {
	switch {
	case contextID != "" && state != "":
		return k.byContextStatus(contextID, state)
	case contextID != "":
		return k.byContext(contextID)
	case state != "":
		return k.byStatus(state)
	default:
		return k.allTasks()
	}
}

func (k keyspace) pushConfig(taskID, configID string) string {
	return k.base + ":pnc:" + escape(taskID) + ":" + escape(configID)
}

func (k keyspace) allPushConfigs() string {
	return k.base + ":idx:pnc"
}

func (k keyspace) pushConfigsOf(taskID string) string {
	return k.base + ":idx:pnc:task:" + escape(taskID)
}

func pushConfigMember(taskID, configID string) string {
	return escape(taskID) + "/" + escape(configID)
}

func parsePushConfigMember(member string) (taskID, configID string, ok bool) {
	rawTask, rawConfig, found := strings.Cut(member, "/")
	if !found {
		return "", "", false
	}
	taskID, err := url.QueryUnescape(rawTask)
	if err != nil {
		return "", "", false
	}
	configID, err = url.QueryUnescape(rawConfig)
	if err != nil {
		return "", "", false
	}
	return taskID, configID, true
}
