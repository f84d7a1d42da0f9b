package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SafetyLevel 安全等级（NS6~NS10）。
// 等级 N 的除数为 2^N-1，最大尝试次数为 N。
type SafetyLevel int

const (
	NS6  SafetyLevel = 6
	NS7  SafetyLevel = 7
	NS8  SafetyLevel = 8
	NS9  SafetyLevel = 9
	NS10 SafetyLevel = 10
)

const (
	MinSafetyLevel = NS6
	MaxSafetyLevel = NS10
)

// Valid 是否在 NS6~NS10 之间
func (l SafetyLevel) Valid() bool {
	return l >= MinSafetyLevel && l <= MaxSafetyLevel
}

// Divisor 返回 63/127/255/511/1023
func (l SafetyLevel) Divisor() int64 {
	return (int64(1) << uint(l)) - 1
}

// MaxAttempts 最大尝试次数（等于等级本身）
func (l SafetyLevel) MaxAttempts() int {
	return int(l)
}

func (l SafetyLevel) String() string {
	return fmt.Sprintf("NS%d", int(l))
}

// ParseSafetyLevel 接受 "7" / "NS7" / "ns7"
func ParseSafetyLevel(raw string) (SafetyLevel, error) {
	s := strings.TrimSpace(strings.ToUpper(raw))
	s = strings.TrimPrefix(s, "NS")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSafetyLevel, raw)
	}
	return SafetyLevelFromInt(n)
}

// SafetyLevelFromInt 校验整数等级
func SafetyLevelFromInt(n int) (SafetyLevel, error) {
	l := SafetyLevel(n)
	if !l.Valid() {
		return 0, fmt.Errorf("%w: %d (允许 6~10)", ErrInvalidSafetyLevel, n)
	}
	return l, nil
}

// ValidatePattern 校验加速模式（非空，且每个等级合法）
func ValidatePattern(pattern []SafetyLevel) error {
	if len(pattern) == 0 {
		return fmt.Errorf("%w: 模式不能为空", ErrInvalidSafetyLevel)
	}
	for i, l := range pattern {
		if !l.Valid() {
			return fmt.Errorf("%w: pattern[%d]=%d", ErrInvalidSafetyLevel, i, int(l))
		}
	}
	return nil
}
