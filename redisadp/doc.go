// Package redisadp provides Redis adapters for taskengine interfaces.
//
// RedisStore: implements Store with secondary sorted-set indexes and
// optimistic WATCH/MULTI/EXEC updates
// RedisEventStream: implements EventStream on Redis pub/sub
// RedisTaskLocker: implements TaskLocker with SET NX PX leases
//
// All adapters accept a redis.UniversalClient, so a single node, a sentinel
// setup or a cluster can back them. miniredis is enough for local development.
package redisadp
