package llm

import (
	"github.com/ppiankov/concord/internal/model"
)

func sampleReport() model.ConsistencyReport {
	return model.ConsistencyReport{
		TotalFields:       2,
		ConsistentCount:   1,
		InconsistentCount: 1,
		ConsistencyRate:   0.5,
		Verdicts: []model.ConsistencyVerdict{
			{
				FieldName:      "password_minimum_length",
				DisplayName:    "Password Minimum Length",
				DistinctValues: []string{"12", "14"},
				Records: []model.FactRecord{
					{FieldName: "password_minimum_length", Value: "12", DocumentTitle: "Information Security Policy"},
					{FieldName: "password_minimum_length", Value: "14", DocumentTitle: "Access Management Policy"},
				},
				ValueGroups: []model.ValueGroup{
					{Value: "12", Key: "12", Documents: []string{"Information Security Policy"}},
					{Value: "14", Key: "14", Documents: []string{"Access Management Policy"}},
				},
			},
			{
				FieldName:      "recovery_time_objective",
				DisplayName:    "Recovery Time Objective",
				IsConsistent:   true,
				DistinctValues: []string{"4 hours"},
				Records: []model.FactRecord{
					{FieldName: "recovery_time_objective", Value: "4 hours", DocumentTitle: "Disaster Recovery Plan"},
				},
			},
		},
		PerDocumentInconsistencyCounts: map[string]int{
			"Information Security Policy": 1,
			"Access Management Policy":    1,
		},
	}
}

func sampleRequest() SummarizeRequest {
	r := sampleReport()
	return SummarizeRequest{Report: r, AllowedFields: ReportFields(r)}
}
