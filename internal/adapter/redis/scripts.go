package redis

import goredis "github.com/redis/go-redis/v9"

// adjustWarnsScript adds ARGV[1] to the warn count, clamping at zero.
// Returns {previous, current}. A non-numeric stored count is left untouched and reported as an error.
var adjustWarnsScript = goredis.NewScript(`
local raw = redis.call('HGET', KEYS[1], 'warns')
local prev = 0
if raw then
  prev = tonumber(raw)
  if prev == nil then
    return redis.error_reply('corrupt warns value ' .. raw)
  end
end
local cur = prev + tonumber(ARGV[1])
if cur < 0 then cur = 0 end
redis.call('HSET', KEYS[1], 'warns', cur)
return {prev, cur}
`)

// swapTrustedScript sets the trusted flag to ARGV[1] and returns 1 if it was set before.
var swapTrustedScript = goredis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'trusted')
redis.call('HSET', KEYS[1], 'trusted', ARGV[1])
if prev == '1' then return 1 end
return 0
`)
