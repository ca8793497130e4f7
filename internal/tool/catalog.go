package tool

import (
	"github.com/xeipuuv/gojsonschema"

	"TaxAdvisor/internal/llm"
)

// 已注册的工具名称。
const (
	GetUserPortfolio = "getUserPortfolio"
	GetRealizedGains = "getRealizedGains"
)

// UserIDDescription 是 userId 参数的说明。
const UserIDDescription = "조회 대상 사용자 ID. 이 서비스는 기본적으로 me를 사용한다."

type definition struct {
	name        string
	description string
}

var definitions = []definition{
	{name: GetUserPortfolio, description: "사용자의 현재 보유 종목을 시장(KR/US) 구분과 함께 조회하고 미실현 손익을 반환한다."},
	{name: GetRealizedGains, description: "사용자의 확정 손익 내역과 합계를 조회한다."},
}

// UserIDParameters 返回两个工具共用的参数 Schema，每次调用都生成新的副本。
func UserIDParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"userId": map[string]any{
				"type":        "string",
				"description": UserIDDescription,
			},
		},
		"required": []string{"userId"},
	}
}

// Catalog 声明了暴露给模型的工具。无状态，可并发使用。
type Catalog struct {
	schema *gojsonschema.Schema
}

// NewCatalog 创建工具目录并编译参数 Schema。
func NewCatalog() *Catalog {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(UserIDParameters()))
	if err != nil {
		// 内置 Schema 是常量，编译失败只可能是代码错误。
		panic(err)
	}
	return &Catalog{schema: schema}
}

// Declarations 返回发送给模型的函数声明。
func (c *Catalog) Declarations() []llm.FunctionDeclaration {
	decls := make([]llm.FunctionDeclaration, 0, len(definitions))
	for _, def := range definitions {
		decls = append(decls, llm.FunctionDeclaration{
			Name:        def.name,
			Description: def.description,
			Parameters:  UserIDParameters(),
		})
	}
	return decls
}

// JSONSpec 返回供 HTTP 接口展示的工具描述。
func (c *Catalog) JSONSpec() []map[string]any {
	spec := make([]map[string]any, 0, len(definitions))
	for _, def := range definitions {
		spec = append(spec, map[string]any{
			"name":        def.name,
			"description": def.description,
			"parameters":  UserIDParameters(),
		})
	}
	return spec
}

// Describe 返回工具描述，未注册时返回 false。
func (c *Catalog) Describe(name string) (string, bool) {
	for _, def := range definitions {
		if def.name == name {
			return def.description, true
		}
	}
	return "", false
}

// Supports 判断工具是否已注册。
func (c *Catalog) Supports(name string) bool {
	_, ok := c.Describe(name)
	return ok
}

// Validate 使用参数 Schema 校验调用参数，返回所有违规描述。
func (c *Catalog) Validate(args llm.Args) []string {
	doc := map[string]any(args)
	if doc == nil {
		doc = map[string]any{}
	}
	result, err := c.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return []string{err.Error()}
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return violations
}
