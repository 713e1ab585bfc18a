package redis

const (
	// saveRecordScript replaces a usage record and indexes its key
	saveRecordScript = `
local record_key = KEYS[1]     -- ontime:usage:{key}
local index_key = KEYS[2]      -- ontime:usage:keys

local key = ARGV[1]
local last_reset_at = ARGV[2]
local last_update_at = ARGV[3]
local accumulated_seconds = ARGV[4]

-- Replace the whole hash so stale fields never survive a save
redis.call('DEL', record_key)
redis.call('HSET', record_key,
  'last_reset_at', last_reset_at,
  'last_update_at', last_update_at,
  'accumulated_seconds', accumulated_seconds
)

redis.call('SADD', index_key, key)

return 'OK'
`
)
