package password

import (
	"fmt"
	"unicode"
)

// Violation 单条密码策略违规
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Policy 密码规则集中在这里，不在调用方分散校验
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy 至少 8 位，包含大写、小写字母和数字；特殊字符可选
func DefaultPolicy() Policy {
	return Policy{
		MinLength:    8,
		MaxLength:    72,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Validate 返回全部违规项，空切片表示通过
func (p Policy) Validate(password string) (bool, []Violation) {
	var violations []Violation

	length := len([]rune(password))
	if length < p.MinLength {
		violations = append(violations, Violation{
			Code:    "min_length",
			Message: fmt.Sprintf("密码长度至少为 %d 位", p.MinLength),
		})
	}
	// bcrypt 只使用前 72 字节
	if p.MaxLength > 0 && len(password) > p.MaxLength {
		violations = append(violations, Violation{
			Code:    "max_length",
			Message: fmt.Sprintf("密码长度不能超过 %d 字节", p.MaxLength),
		})
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if p.RequireUpper && !hasUpper {
		violations = append(violations, Violation{Code: "uppercase", Message: "密码需包含大写字母"})
	}
	if p.RequireLower && !hasLower {
		violations = append(violations, Violation{Code: "lowercase", Message: "密码需包含小写字母"})
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, Violation{Code: "digit", Message: "密码需包含数字"})
	}
	if p.RequireSpecial && !hasSpecial {
		violations = append(violations, Violation{Code: "special", Message: "密码需包含特殊字符"})
	}

	return len(violations) == 0, violations
}
