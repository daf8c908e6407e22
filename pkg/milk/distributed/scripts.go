package distributed

// Lua scripts for atomic bucket operations. Levels are stored as strings
// formatted with %.17g so that they round-trip through float64 exactly.

const luaHelpers = `
local function format_level(level)
    return string.format('%.17g', level)
end

local function touch(key, ttl)
    if ttl > 0 then
        redis.call('PEXPIRE', key, ttl)
    end
end

local function set_level(key, level, ttl)
    local value = format_level(level)
    if ttl > 0 then
        redis.call('SET', key, value, 'PX', ttl)
    else
        redis.call('SET', key, value)
    end
    return value
end
`

const luaAvailable = `
-- KEYS[1]: level key

return redis.call('GET', KEYS[1]) or '0'
`

const luaFill = luaHelpers + `
-- KEYS[1]: level key
-- KEYS[2]: stats key
-- ARGV[1]: amount
-- ARGV[2]: capacity
-- ARGV[3]: key ttl in milliseconds, 0 for none

local level = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

-- Saturate at capacity, but never lower a level written by an instance
-- configured with a larger capacity.
local after = math.max(level, math.min(level + amount, capacity))
local value = set_level(KEYS[1], after, ttl)

redis.call('HINCRBY', KEYS[2], 'fills', 1)
touch(KEYS[2], ttl)

return value
`

const luaFulfill = luaHelpers + `
-- KEYS[1]: level key
-- ARGV[1]: capacity
-- ARGV[2]: key ttl in milliseconds, 0 for none

return set_level(KEYS[1], tonumber(ARGV[1]), tonumber(ARGV[2]))
`

const luaWithdraw = luaHelpers + `
-- KEYS[1]: level key
-- KEYS[2]: stats key
-- ARGV[1]: amount
-- ARGV[2]: key ttl in milliseconds, 0 for none

local level = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

redis.call('HINCRBY', KEYS[2], 'withdrawals', 1)

local after = level - amount
if after < 0 then
    redis.call('HINCRBY', KEYS[2], 'refused', 1)
    touch(KEYS[2], ttl)
    return {0, format_level(level)}
end

local value = set_level(KEYS[1], after, ttl)
redis.call('HINCRBY', KEYS[2], 'served', 1)
touch(KEYS[2], ttl)

return {1, value}
`
