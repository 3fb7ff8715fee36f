package xwindow

import "github.com/redis/go-redis/v9"

// reserveScript 剔除、检查、追加三个有序集合
//
// KEYS: requests tokens daily
// ARGV: now_ms rpm tpm rpd tokens member
// 返回 {allowed, wait_ms, blocked_mask}
//
// token 集合的成员为 "<member>:<tokens>"，分数为时间戳（毫秒）。
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local rpm = tonumber(ARGV[2])
local tpm = tonumber(ARGV[3])
local rpd = tonumber(ARGV[4])
local est = tonumber(ARGV[5])
local member = ARGV[6]
local minute = 60000
local day = 86400000

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - minute)
redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', now - minute)
redis.call('ZREMRANGEBYSCORE', KEYS[3], '-inf', now - day)

local wait = 0
local blocked = 0

local reqs = redis.call('ZCARD', KEYS[1])
if reqs >= rpm then
  local e = redis.call('ZRANGE', KEYS[1], reqs - rpm, reqs - rpm, 'WITHSCORES')
  wait = math.max(wait, tonumber(e[2]) + minute - now)
  blocked = blocked + 1
end

local entries = redis.call('ZRANGE', KEYS[2], 0, -1, 'WITHSCORES')
local sum = 0
for i = 1, #entries, 2 do
  sum = sum + tonumber(string.match(entries[i], ':(%d+)$'))
end
local excess = sum + est - tpm
if excess > 0 then
  local freed = 0
  for i = 1, #entries, 2 do
    freed = freed + tonumber(string.match(entries[i], ':(%d+)$'))
    if freed >= excess then
      wait = math.max(wait, tonumber(entries[i + 1]) + minute - now)
      break
    end
  end
  blocked = blocked + 2
end

local days = redis.call('ZCARD', KEYS[3])
if days >= rpd then
  local e = redis.call('ZRANGE', KEYS[3], days - rpd, days - rpd, 'WITHSCORES')
  wait = math.max(wait, tonumber(e[2]) + day - now)
  blocked = blocked + 4
end

if blocked > 0 then
  return {0, math.max(wait, 1), blocked}
end

redis.call('ZADD', KEYS[1], now, member)
redis.call('ZADD', KEYS[2], now, member .. ':' .. est)
redis.call('ZADD', KEYS[3], now, member)
redis.call('PEXPIRE', KEYS[1], minute)
redis.call('PEXPIRE', KEYS[2], minute)
redis.call('PEXPIRE', KEYS[3], day)
return {1, 0, 0}
`)
