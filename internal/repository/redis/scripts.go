package redis

import "github.com/go-redis/redis/v8"

// compareAndSetScript записывает ARGV[2] в поле ARGV[1], если значение отличается,
// и продлевает TTL ключа на ARGV[3] секунд. Возвращает {changed, value}.
var compareAndSetScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current == ARGV[2] then
	return {0, current}
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
return {1, ARGV[2]}
`)

// freezePointsScript переносит ARGV[1] баллов из point во frozenPoint.
// -1: ключа нет, -2: недостаточно баллов, 1: успех.
var freezePointsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local available = tonumber(redis.call('HGET', KEYS[1], 'point') or '0') or 0
local cost = tonumber(ARGV[1])
if available < cost then
	return -2
end
redis.call('HINCRBY', KEYS[1], 'point', -cost)
redis.call('HINCRBY', KEYS[1], 'frozenPoint', cost)
return 1
`)

// releaseLeaseScript удаляет ключ аренды, только если он принадлежит ARGV[1]
var releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// incrementWindowScript увеличивает счётчик и ставит TTL ARGV[1] мс, если его нет.
// Возвращает {count, pttl}.
var incrementWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[1]))
end
return {count, redis.call('PTTL', KEYS[1])}
`)
