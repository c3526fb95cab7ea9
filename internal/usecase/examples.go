package usecase

import "bizplan/internal/domain"

func agentRef(name string) *string { return &name }

// Examples returns the canned prompts offered by the API.
func Examples() []domain.ExampleQuery {
	return []domain.ExampleQuery{
		{
			Title: "Competitive Analysis",
			Query: "Analyze the competitive landscape for project management software tools. " +
				"Focus on the top 3-5 competitors, their pricing models, key features, and market positioning.",
			Agent: agentRef("competitive-analysis"),
		},
		{
			Title: "Financial Analysis (CoCA)",
			Query: "Calculate the Customer Acquisition Cost (CoCA) for a B2B SaaS startup with marketing spend of " +
				"$50,000/month, sales team of 3 people @ $8,000/month each, and 20 new customers/month.",
			Agent: agentRef("financial-analysis"),
		},
		{
			Title: "Comprehensive Business Plan",
			Query: "Create a business plan section for a new AI-powered business intelligence tool including " +
				"competitive analysis, pricing strategy, and market positioning.",
		},
	}
}

// Scenarios are the longer walkthrough queries the CLI runs through the
// orchestrator.
func Scenarios() []domain.ExampleQuery {
	return []domain.ExampleQuery{
		{
			Title: "Competitive Analysis",
			Query: `Analyze the competitive landscape for project management software tools.
Focus on the top 3-5 competitors, their pricing models, key features, and market positioning.
Identify gaps in the market that a new entrant could exploit.`,
		},
		{
			Title: "Financial Analysis (CoCA Calculation)",
			Query: `Calculate the Customer Acquisition Cost (CoCA) for a B2B SaaS startup.
Consider:
- Marketing spend: $50,000/month
- Sales team: 3 people @ $8,000/month each
- New customers acquired: 20/month
- Research industry benchmarks for B2B SaaS
- Provide short-term (monthly), medium-term (quarterly), and long-term (annual) CoCA analysis.`,
		},
		{
			Title: "Comprehensive Business Plan Analysis",
			Query: `Create a business plan section for a new AI-powered business intelligence tool.

Include:
1. Competitive analysis of existing BI tools (Tableau, Power BI, Looker)
2. Pricing strategy based on competitor analysis
3. Customer acquisition cost projections for first year
4. Market positioning and differentiation strategy

Provide a comprehensive analysis with specific recommendations.`,
		},
	}
}
