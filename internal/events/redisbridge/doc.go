// Package redisbridge mirrors events.Bus messages onto a Redis pub/sub
// channel and reads them back for out-of-process observers.
package redisbridge
