package types

type (
	JDFunction string
	Seniority  string

	Competency struct {
		Name   string  `json:"name"`
		Weight float64 `json:"weight"`
	}

	// Structured hiring schema dissected from a job description
	ParsedJD struct {
		Function         JDFunction   `json:"function"`
		RoleFamily       string       `json:"role_family"`
		Seniority        Seniority    `json:"seniority"`
		DecisionContext  string       `json:"decision_context"`
		CoreCompetencies []Competency `json:"core_competencies"`
		Tools            []string     `json:"tools"`
		Constraints      []string     `json:"constraints"`
		ConfidenceScore  float64      `json:"confidence_score"`
	}

	SchemaValidation struct {
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
		Valid    bool     `json:"valid"`
	}
)

const (
	FunctionMarketing   JDFunction = "Marketing"
	FunctionFinance     JDFunction = "Finance"
	FunctionHR          JDFunction = "HR"
	FunctionOperations  JDFunction = "Operations"
	FunctionEngineering JDFunction = "Engineering"
	FunctionDesign      JDFunction = "Design"
	FunctionSales       JDFunction = "Sales"
	FunctionOther       JDFunction = "Other"
)

const (
	SeniorityEntry  Seniority = "Entry"
	SenioritySenior Seniority = "Senior"
	SeniorityMid    Seniority = "Mid"
)

var (
	Functions = []JDFunction{
		FunctionMarketing,
		FunctionFinance,
		FunctionHR,
		FunctionOperations,
		FunctionEngineering,
		FunctionDesign,
		FunctionSales,
		FunctionOther,
	}
	Seniorities = []Seniority{SeniorityEntry, SeniorityMid, SenioritySenior}
)
