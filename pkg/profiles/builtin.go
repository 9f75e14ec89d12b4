package profiles

import "github.com/alaabenhmida/AgentShield/pkg/filter"

// builtinProfiles returns the stock domain tables. "general" carries
// empty lists: every input is relevant and only universal redactions
// apply.
func builtinProfiles() []Profile {
	return []Profile{
		{
			Name: "healthcare",
			Keywords: []string{
				"diabetes", "hypertension", "medication", "symptom", "diagnosis",
				"treatment", "patient", "chronic", "disease", "prescription",
				"doctor", "hospital", "blood pressure", "insulin", "cardiovascular",
				"tumor", "cancer", "cardiology", "oncology", "radiology",
				"pathology", "pediatrics", "psychiatry", "allergy", "orthopedics",
				"dermatology", "hematology",
			},
			Redactions: []filter.Rule{
				{Name: "patient_id", Pattern: `\b(?:P|MRN-?)\d{4,}\b`},
				{Name: "dob", Pattern: `\b(?:DOB|Date of Birth)\s*:?\s*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`},
				{Name: "npi", Pattern: `\b\d{10}(?:NPI)?\b`},
				{Name: "icd10", Pattern: `\b[A-Z]\d{2}(?:\.\d{1,2})?\b`},
			},
			TrustedSources: []string{
				"mayoclinic.org", "nih.gov", "cdc.gov", "who.int",
				"medlineplus.gov", "uptodate.com", "pubmed.ncbi.nlm.nih.gov",
				"nejm.org", "jamanetwork.com", "bmj.com",
			},
		},
		{
			Name: "finance",
			Keywords: []string{
				"account", "balance", "transaction", "investment", "portfolio",
				"credit", "loan", "interest", "payment", "stock", "fund",
				"wire transfer", "routing number", "swift", "iban", "securities",
				"equity", "derivatives", "hedge", "mutual fund", "brokerage",
			},
			Redactions: []filter.Rule{
				{Name: "account_id", Pattern: `\bACC-?\d{4,}\b`},
				{Name: "iban", Pattern: `\b[A-Z]{2}\d{2}[A-Z0-9]{4}\d{7}(?:[A-Z0-9]{0,16})?\b`},
				{Name: "swift", Pattern: `\b[A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`},
				{Name: "routing_number", Pattern: `\b\d{9}\b`},
			},
			TrustedSources: []string{
				"sec.gov", "federalreserve.gov", "finra.org", "fdic.gov",
			},
		},
		{
			Name: "legal",
			Keywords: []string{
				"contract", "clause", "liability", "regulation", "compliance",
				"lawsuit", "attorney", "court", "jurisdiction", "precedent",
				"deposition", "subpoena", "plaintiff", "defendant", "indictment",
				"habeas corpus", "tort", "injunction", "arbitration",
				"statute of limitations",
			},
			Redactions: []filter.Rule{
				{Name: "case_number", Pattern: `\b\d{4}-[A-Z]{2,3}-\d{3,6}\b`},
				{Name: "bar_number", Pattern: `\bBAR-?\d{5,8}\b`},
			},
			TrustedSources: []string{
				"law.cornell.edu", "supremecourt.gov", "justia.com",
			},
		},
		{
			Name: "general",
		},
	}
}
