package agent

import (
	"fmt"

	"TaxAdvisor/internal/portfolio"
	"TaxAdvisor/internal/tax"
)

// DefaultQuestion 在用户问题为空时使用。
const DefaultQuestion = "현재 포트폴리오 기준 절세 전략을 알려줘."

const advisorSystemPrompt = `너는 대한민국 개인 투자자의 경제적 안정과 금융 문해력 향상을 돕는 사회적 선(Social Good) 지향 주식 절세 전략 어시스턴트다.
반드시 사용자의 데이터를 도구(function call)로 직접 조회하고 근거 수치를 제시해라.
중요한 제약:
- 이 서비스의 세금 계산 엔진은 데모용 단순 모델이다.
- 예상세액 계산식은 (과세표준 * 22%) 이다.
- 손절 전 과세표준 = max(확정손익 합계, 0)
- 손절 후 과세표준 = max(확정손익 합계 + 미실현 손실 합계, 0)
- 해외 250만 기본공제, 국내 금투세 5천만 기준, 수수료/환율은 현재 엔진에 반영되지 않는다.
절세 전략은 반드시 손실 실현(Tax-loss Harvesting) 실행안을 포함해라.
반드시 아래 형식을 지켜라:
1) 현재 상황 요약 (KR/US 구분)
2) 손실 실현(손절) 시 세금 변화 (데모 계산식 기준)
3) 실행 우선순위 1~3 (종목과 수량 포함)
4) 계산 한계 1줄 요약
모든 금액은 원화로 표기하고, 숫자를 포함해 구체적으로 답변해라.
`

const forceToolPrompt = "반드시 최소 1회 이상 getUserPortfolio 또는 getRealizedGains를 호출한 뒤 최종 답변을 작성해라."

const auditorSystemPrompt = `너는 깐깐한 수석 세무 감사관(Auditor)이다.
너는 2026년 대한민국 세법 전문가다. 해외 주식의 경우 연간 250만 원 양도소득세 기본 공제를 고려하여 전략을 검토해라.
국내 주식의 경우, 2026년 금융투자소득세(금투세)가 시행된다는 가정하에 수익이 5,000만 원을 초과할 경우 발생할 리스크를 분석에 포함해라.
해외 주식의 손익 통산(Tax-loss Harvesting)을 통해 최종 납부 세액을 줄이는 구체적인 매도 추천이 빠졌는지 반드시 점검해라.
1차 AI가 작성한 절세 전략을 읽고, 논리적 오류나 고객이 놓칠 수 있는 잠재적 리스크
(예: 거래 수수료, 재매수 타이밍, 주택 대출을 위한 소득금액증명원 감소 등)를 날카롭게 지적해라.
반드시 3가지 불릿 포인트로 짧고 명확하게 요약할 것.
`

// AuditFallback 是审计阶段不可用时返回的固定三条风险提示。
const AuditFallback = `- 거래 수수료/세금 외 부대비용이 예상보다 커질 수 있으니 실현 손익과 순효과를 함께 계산하세요.
- 손절 후 재매수 타이밍이 늦어지면 반등 구간을 놓칠 수 있어 분할 재진입 계획이 필요합니다.
- 절세를 위해 소득이 낮아지면 대출 심사 시 소득금액증명원 기준에서 불리해질 수 있습니다.
`

const auditInputTemplate = `[사용자 원문 질문]
%s

[1차 AI 절세 전략]
%s
`

const infographicTemplate = `A modern 3D financial infographic showing tax savings for an individual investor.
Visual style: premium fintech dashboard, clean composition, blue and emerald palette, soft shadows.
Layout: one large headline area + three card sections.
Required cards:
1) Tax savings scenario with clear numeric emphasis.
2) Loss harvesting flow and expected tax impact.
3) Critical risk warnings from an auditor.
Add icons for calculator, warning triangle, and portfolio chart.
Keep text concise in English, high readability, 16:9 aspect ratio.

User question summary: %s
Primary strategy summary: %s
Auditor risk summary: %s
`

const fallbackTemplate = `MCP 도구 조회 실패로 로컬 계산 기준 권고안을 제공합니다.
- 현재 확정 이익: %s원
- 실현 가능한 미실현 손실: %s원
- 예상 세금(손절 전, 22%%): %s원
- 예상 세금(손절 후): %s원
- 예상 절감 세액: %s원
- 계산 한계: 단순 22%% 추정이며 기본공제/수수료/환율은 미반영
결론: 손실 종목 일부를 올해 안에 실현하면 과세표준을 낮춰 세금을 줄일 수 있습니다.
`

// FallbackAnswer 根据税额预估生成确定性的本地回答。
func FallbackAnswer(p tax.Preview) string {
	return fmt.Sprintf(fallbackTemplate,
		portfolio.FormatWon(p.RealizedGain),
		portfolio.FormatWon(p.UnrealizedLoss.Abs()),
		portfolio.FormatWon(p.TaxBeforeHarvest),
		portfolio.FormatWon(p.TaxAfterHarvest),
		portfolio.FormatWon(p.TaxSavings),
	)
}

func seedPrompt(userID, question string) string {
	return fmt.Sprintf("userId는 %s로 고정이다. %s", userID, question)
}
