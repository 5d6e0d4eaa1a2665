package generator

import "github.com/claimsiq/claimsiq/internal/domain/claims"

type codeEntry struct{ code, description, category string }

var icd10Entries = []codeEntry{
	{"E11.9", "Type 2 diabetes mellitus without complications", "Endocrine"},
	{"E11.65", "Type 2 diabetes mellitus with hyperglycemia", "Endocrine"},
	{"E11.21", "Type 2 diabetes mellitus with diabetic nephropathy", "Endocrine"},
	{"E10.9", "Type 1 diabetes mellitus without complications", "Endocrine"},

	{"I10", "Essential (primary) hypertension", "Circulatory"},
	{"I11.9", "Hypertensive heart disease without heart failure", "Circulatory"},
	{"I12.9", "Hypertensive chronic kidney disease", "Circulatory"},

	{"M54.5", "Low back pain", "Musculoskeletal"},
	{"M25.561", "Pain in right knee", "Musculoskeletal"},
	{"M79.3", "Panniculitis, unspecified", "Musculoskeletal"},
	{"M25.511", "Pain in right shoulder", "Musculoskeletal"},

	{"J44.1", "Chronic obstructive pulmonary disease with (acute) exacerbation", "Respiratory"},
	{"J06.9", "Acute upper respiratory infection, unspecified", "Respiratory"},
	{"J18.9", "Pneumonia, unspecified organism", "Respiratory"},
	{"J45.909", "Unspecified asthma, uncomplicated", "Respiratory"},

	{"F41.9", "Anxiety disorder, unspecified", "Mental Health"},
	{"F32.9", "Major depressive disorder, single episode, unspecified", "Mental Health"},
	{"F33.1", "Major depressive disorder, recurrent, moderate", "Mental Health"},

	{"K21.9", "Gastro-esophageal reflux disease without esophagitis", "Digestive"},
	{"K59.00", "Constipation, unspecified", "Digestive"},
	{"K25.9", "Gastric ulcer, unspecified as acute or chronic", "Digestive"},

	{"I50.9", "Heart failure, unspecified", "Circulatory"},
	{"I25.10", "Atherosclerotic heart disease of native coronary artery without angina pectoris", "Circulatory"},
	{"I48.91", "Unspecified atrial fibrillation", "Circulatory"},

	{"C50.919", "Malignant neoplasm of unspecified site of unspecified female breast", "Neoplasms"},
	{"C78.00", "Secondary malignant neoplasm of unspecified lung", "Neoplasms"},

	{"S72.90XA", "Unspecified fracture of unspecified femur, initial encounter", "Injury"},
	{"S42.90XA", "Unspecified fracture of unspecified shoulder girdle, initial encounter", "Injury"},

	{"R50.9", "Fever, unspecified", "Symptoms"},
	{"R06.02", "Shortness of breath", "Symptoms"},
	{"R51", "Headache", "Symptoms"},

	{"E78.5", "Hyperlipidemia, unspecified", "Metabolic"},
	{"E78.00", "Pure hypercholesterolemia, unspecified", "Metabolic"},

	{"N39.0", "Urinary tract infection, site not specified", "Genitourinary"},
	{"N18.6", "End stage renal disease", "Genitourinary"},
}

var cptEntries = []codeEntry{
	{"99213", "Office or other outpatient visit for the evaluation and management of an established patient", "E&M"},
	{"99214", "Office or other outpatient visit for the evaluation and management of an established patient", "E&M"},
	{"99215", "Office or other outpatient visit for the evaluation and management of an established patient", "E&M"},
	{"99203", "Office or other outpatient visit for the evaluation and management of a new patient", "E&M"},
	{"99204", "Office or other outpatient visit for the evaluation and management of a new patient", "E&M"},
	{"99284", "Emergency department visit for the evaluation and management of a patient", "E&M"},
	{"99285", "Emergency department visit for the evaluation and management of a patient", "E&M"},

	{"80053", "Comprehensive metabolic panel", "Laboratory"},
	{"85027", "Complete blood count (CBC)", "Laboratory"},
	{"85610", "Prothrombin time", "Laboratory"},
	{"81001", "Urinalysis, by dip stick or tablet reagent", "Laboratory"},
	{"80061", "Lipid panel", "Laboratory"},

	{"73060", "Radiologic examination, knee; 1 or 2 views", "Radiology"},
	{"72141", "Magnetic resonance imaging, cervical spine", "Radiology"},
	{"70450", "Computed tomography, head or brain; without contrast material", "Radiology"},
	{"71020", "Radiologic examination, chest, 2 views", "Radiology"},

	{"27447", "Arthroplasty, knee, condyle and plateau; medial AND lateral compartments", "Surgery"},
	{"45378", "Colonoscopy, flexible; diagnostic", "Surgery"},
	{"47562", "Laparoscopy, surgical; cholecystectomy", "Surgery"},

	{"36415", "Routine venipuncture for collection of specimen(s)", "Medicine"},
	{"93000", "Electrocardiogram, routine ECG with at least 12 leads", "Medicine"},
	{"94640", "Noninvasive ventilation", "Medicine"},

	{"88304", "Level III - Surgical pathology, gross and microscopic examination", "Pathology"},
	{"88305", "Level IV - Surgical pathology, gross and microscopic examination", "Pathology"},
}

// ICD10Codes returns the diagnosis lookup table.
func ICD10Codes() []claims.ICD10Code {
	out := make([]claims.ICD10Code, len(icd10Entries))
	for i, e := range icd10Entries {
		out[i] = claims.ICD10Code{Code: e.code, Description: e.description, Category: e.category, IsValid: true}
	}
	return out
}

// CPTCodes returns the procedure lookup table.
func CPTCodes() []claims.CPTCode {
	out := make([]claims.CPTCode, len(cptEntries))
	for i, e := range cptEntries {
		out[i] = claims.CPTCode{Code: e.code, Description: e.description, Category: e.category, IsValid: true}
	}
	return out
}
