package intent

import "github.com/wolfman30/sobrecupos-ai/internal/textutil"

// Specialty names as stored in the appointment datastore.
const (
	MedicinaGeneral      = "Medicina General"
	Oftalmologia         = "Oftalmología"
	Neurologia           = "Neurología"
	Cardiologia          = "Cardiología"
	Dermatologia         = "Dermatología"
	Otorrinolaringologia = "Otorrinolaringología"
	Traumatologia        = "Traumatología"
	Gastroenterologia    = "Gastroenterología"
	Ginecologia          = "Ginecología"
	Urologia             = "Urología"
	Endocrinologia       = "Endocrinología"
	Psiquiatria          = "Psiquiatría"
	Pediatria            = "Pediatría"
)

// SubArea is a declared focus inside a specialty (e.g. retina within ophthalmology).
type SubArea struct {
	Name     string
	Keywords []string
}

// SpecialtyEntry lists the phrases that name a specialty directly.
type SpecialtyEntry struct {
	Name     string
	Keywords []string
	SubAreas []SubArea
}

// SymptomFamily routes a group of symptom phrases to a specialty. When
// Escalation words are present the family routes to EscalateTo instead.
// RankUrgency enables the urgency ladder for the family.
type SymptomFamily struct {
	Name        string
	Phrases     []string
	Specialty   string
	EscalateTo  string
	Escalation  []string
	RankUrgency bool
}

// UrgencyLadder is checked top-down; the first tier with a matching phrase wins.
type UrgencyLadder struct {
	Critical []string
	High     []string
	Moderate []string
}

// KnowledgeBase is the data the rule classifier runs on. All phrases are
// stored normalized (lowercase, no diacritics).
type KnowledgeBase struct {
	Greetings    []string
	Specialties  []SpecialtyEntry
	Symptoms     []SymptomFamily
	Urgency      UrgencyLadder
	MedicalWords []string
	PainWords    []string
	Generalist   string
}

// DefaultKnowledgeBase returns the built-in Spanish tables.
func DefaultKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		Generalist: MedicinaGeneral,
		Greetings: []string{
			"hola", "holi", "hello", "hi", "buenas", "buenos dias", "buen dia",
			"buenas tardes", "buenas noches", "saludos", "que tal", "alo", "hey",
		},
		Specialties: []SpecialtyEntry{
			{Name: Oftalmologia, Keywords: []string{"oftalmologo", "oftalmologa", "oftalmologia", "oculista", "oftalmologico"},
				SubAreas: []SubArea{
					{Name: "Retina", Keywords: []string{"retina", "desprendimiento", "destellos", "moscas volantes", "diabetes"}},
					{Name: "Glaucoma", Keywords: []string{"glaucoma", "presion ocular", "presion en el ojo"}},
					{Name: "Córnea", Keywords: []string{"cornea", "queratocono", "lentes de contacto"}},
					{Name: "Cataratas", Keywords: []string{"catarata", "cataratas"}},
					{Name: "Estrabismo", Keywords: []string{"estrabismo", "ojo desviado", "bizco"}},
				}},
			{Name: Neurologia, Keywords: []string{"neurologo", "neurologa", "neurologia", "neurologico"},
				SubAreas: []SubArea{
					{Name: "Cefaleas", Keywords: []string{"migrana", "cefalea", "jaqueca"}},
					{Name: "Epilepsia", Keywords: []string{"epilepsia", "convulsion", "convulsiones"}},
				}},
			{Name: Cardiologia, Keywords: []string{"cardiologo", "cardiologa", "cardiologia", "cardiologico"},
				SubAreas: []SubArea{
					{Name: "Arritmias", Keywords: []string{"arritmia", "palpitaciones", "taquicardia"}},
					{Name: "Hipertensión", Keywords: []string{"hipertension", "presion alta"}},
				}},
			{Name: Dermatologia, Keywords: []string{"dermatologo", "dermatologa", "dermatologia"},
				SubAreas: []SubArea{
					{Name: "Acné", Keywords: []string{"acne", "espinillas"}},
					{Name: "Lunares", Keywords: []string{"lunar", "lunares", "mancha"}},
				}},
			{Name: Otorrinolaringologia, Keywords: []string{"otorrino", "otorrinolaringologo", "otorrinolaringologia"}},
			{Name: Traumatologia, Keywords: []string{"traumatologo", "traumatologa", "traumatologia"},
				SubAreas: []SubArea{
					{Name: "Rodilla", Keywords: []string{"rodilla", "menisco", "ligamento"}},
					{Name: "Columna", Keywords: []string{"columna", "espalda", "lumbago"}},
					{Name: "Hombro", Keywords: []string{"hombro", "manguito"}},
				}},
			{Name: Gastroenterologia, Keywords: []string{"gastroenterologo", "gastroenterologa", "gastroenterologia", "gastro"}},
			{Name: Ginecologia, Keywords: []string{"ginecologo", "ginecologa", "ginecologia", "matrona"}},
			{Name: Urologia, Keywords: []string{"urologo", "urologa", "urologia"}},
			{Name: Endocrinologia, Keywords: []string{"endocrinologo", "endocrinologa", "endocrinologia", "endocrino"}},
			{Name: Psiquiatria, Keywords: []string{"psiquiatra", "psiquiatria"}},
			{Name: Pediatria, Keywords: []string{"pediatra", "pediatria"}},
			{Name: MedicinaGeneral, Keywords: []string{"medico general", "medicina general", "medico de cabecera"}},
		},
		Symptoms: []SymptomFamily{
			{
				Name:        "eye",
				Specialty:   Oftalmologia,
				RankUrgency: true,
				Phrases: []string{
					"dolor de ojo", "dolor de ojos", "dolor en el ojo", "dolor en los ojos",
					"me duele el ojo", "me duelen los ojos", "ojo rojo", "ojos rojos",
					"vision borrosa", "veo borroso", "veo mal", "no veo", "perdi la vision",
					"ardor en los ojos", "picazon en los ojos", "ojos secos", "lagrimeo",
					"orzuelo", "conjuntivitis", "moscas volantes", "destellos", "vision doble",
					"golpe en el ojo",
				},
			},
			{
				Name:       "headache",
				Specialty:  MedicinaGeneral,
				EscalateTo: Neurologia,
				Phrases: []string{
					"dolor de cabeza", "dolores de cabeza", "me duele la cabeza", "cefalea",
					"jaqueca", "migrana", "migranas",
				},
				Escalation: []string{
					"severo", "severa", "fuerte", "muy fuerte", "intenso", "intensa", "insoportable",
					"migrana", "migranas", "todos los dias", "cada dia", "cronico", "cronica",
					"semanas", "meses", "fotofobia", "la luz me molesta", "nauseas", "vomitos",
					"mareo", "mareos", "hormigueo", "adormecimiento", "vision doble", "aura",
				},
			},
			{
				Name:      "cardio",
				Specialty: Cardiologia,
				Phrases: []string{
					"dolor de pecho", "dolor en el pecho", "palpitaciones", "taquicardia",
					"presion alta", "hipertension", "arritmia", "me late rapido el corazon",
				},
			},
			{
				Name:      "skin",
				Specialty: Dermatologia,
				Phrases: []string{
					"manchas en la piel", "mancha en la piel", "acne", "espinillas", "lunar",
					"picazon en la piel", "alergia en la piel", "sarpullido", "ronchas",
					"caida del pelo", "caida de pelo", "psoriasis", "dermatitis",
				},
			},
			{
				Name:      "ent",
				Specialty: Otorrinolaringologia,
				Phrases: []string{
					"dolor de oido", "dolor de oidos", "me duele el oido", "zumbido en el oido",
					"sinusitis", "amigdalas", "no escucho bien", "sangrado de nariz", "ronquidos",
				},
			},
			{
				Name:      "musculoskeletal",
				Specialty: Traumatologia,
				Phrases: []string{
					"dolor de rodilla", "dolor en la rodilla", "dolor de espalda", "dolor lumbar",
					"lumbago", "esguince", "fractura", "dolor de hombro", "dolor en el hombro",
					"torcedura", "me torci", "dolor de tobillo",
				},
			},
			{
				Name:      "digestive",
				Specialty: Gastroenterologia,
				Phrases: []string{
					"dolor de estomago", "dolor de guata", "acidez", "reflujo", "gastritis",
					"diarrea", "colon irritable", "estrenimiento", "hinchazon abdominal",
				},
			},
			{
				Name:      "gyn",
				Specialty: Ginecologia,
				Phrases: []string{
					"menstruacion", "regla irregular", "embarazo", "estoy embarazada", "papanicolau",
					"flujo vaginal",
				},
			},
			{
				Name:      "urinary",
				Specialty: Urologia,
				Phrases: []string{
					"dolor al orinar", "ardor al orinar", "prostata", "calculos renales",
					"infeccion urinaria",
				},
			},
			{
				Name:      "endocrine",
				Specialty: Endocrinologia,
				Phrases: []string{
					"tiroides", "diabetes", "azucar alta", "insulina", "hipotiroidismo",
				},
			},
			{
				Name:      "mental",
				Specialty: Psiquiatria,
				Phrases: []string{
					"ansiedad", "depresion", "angustia", "ataques de panico", "insomnio",
					"no puedo dormir",
				},
			},
			{
				Name:      "general",
				Specialty: MedicinaGeneral,
				Phrases: []string{
					"fiebre", "resfrio", "gripe", "tos", "dolor de garganta", "malestar general",
					"cansancio", "chequeo", "control medico", "certificado medico",
				},
			},
			{
				Name:      "child",
				Specialty: Pediatria,
				Phrases: []string{
					"mi hijo", "mi hija", "mi guagua", "mi bebe", "para un nino", "para una nina",
				},
			},
		},
		Urgency: UrgencyLadder{
			Critical: []string{
				"perdi la vision", "perdida de vision", "no veo nada", "no veo", "quede ciego",
				"golpe en el ojo", "quimico en el ojo", "cloro en el ojo", "sangre en el ojo",
				"cortina", "sombra en la vision",
			},
			High: []string{
				"dolor intenso", "dolor fuerte", "muy fuerte", "insoportable", "destellos",
				"moscas volantes", "vision doble", "fotofobia", "la luz me molesta",
				"vision borrosa de repente",
			},
			Moderate: []string{
				"ojo rojo", "ojos rojos", "secrecion", "pus", "hinchado", "hinchazon",
				"inflamado", "lagrimeo", "desde ayer", "picazon",
			},
		},
		MedicalWords: []string{
			"sintoma", "sintomas", "enfermo", "enferma", "consulta", "examen", "tratamiento",
			"diagnostico", "medicamento", "remedio", "hora medica", "especialista",
		},
		PainWords: []string{
			"dolor", "dolores", "duele", "duelen", "molestia", "molestias", "problema",
			"problemas", "me siento mal", "malestar", "ardor",
		},
	}
}

// MatchSpecialty returns the first specialty, in table order, whose keyword
// appears in norm.
func (kb *KnowledgeBase) MatchSpecialty(norm string) (string, string, bool) {
	for _, sp := range kb.Specialties {
		if kw, ok := textutil.FirstPhrase(norm, sp.Keywords); ok {
			return sp.Name, kw, true
		}
	}
	return "", "", false
}

// MatchSymptom returns the first symptom family, in table order, with a
// phrase present in norm.
func (kb *KnowledgeBase) MatchSymptom(norm string) (SymptomFamily, string, bool) {
	for _, fam := range kb.Symptoms {
		if p, ok := textutil.FirstPhrase(norm, fam.Phrases); ok {
			return fam, p, true
		}
	}
	return SymptomFamily{}, "", false
}

// Route resolves the specialty for a matched family, applying the severity
// heuristic when the family has an escalation track.
func (kb *KnowledgeBase) Route(fam SymptomFamily, norm string) (string, Severity) {
	if fam.EscalateTo == "" {
		return fam.Specialty, SeverityNone
	}
	if textutil.ContainsAny(norm, fam.Escalation) {
		return fam.EscalateTo, SeveritySevere
	}
	return fam.Specialty, SeverityMild
}

// RankUrgency walks the urgency ladder from critical down.
func (kb *KnowledgeBase) RankUrgency(norm string) Urgency {
	switch {
	case textutil.ContainsAny(norm, kb.Urgency.Critical):
		return UrgencyCritical
	case textutil.ContainsAny(norm, kb.Urgency.High):
		return UrgencyHigh
	case textutil.ContainsAny(norm, kb.Urgency.Moderate):
		return UrgencyModerate
	default:
		return UrgencyNormal
	}
}

// SubAreaOf returns the first declared sub-area of specialty mentioned in norm.
func (kb *KnowledgeBase) SubAreaOf(specialty, norm string) string {
	want := textutil.Normalize(specialty)
	for _, sp := range kb.Specialties {
		if textutil.Normalize(sp.Name) != want {
			continue
		}
		for _, sa := range sp.SubAreas {
			if textutil.ContainsAny(norm, sa.Keywords) {
				return sa.Name
			}
		}
	}
	return ""
}

// IsGreeting reports an exact or prefix match against the greeting list.
func (kb *KnowledgeBase) IsGreeting(norm string) bool {
	for _, g := range kb.Greetings {
		if norm == g {
			return true
		}
		if len(norm) > len(g) && norm[:len(g)] == g && !isLetter(norm[len(g)]) {
			return true
		}
	}
	return false
}

// MentionsMedicalTopic reports whether norm names a specialty or a symptom.
// It is used to detect a change of topic while a form field is being collected.
func (kb *KnowledgeBase) MentionsMedicalTopic(norm string) bool {
	if _, _, ok := kb.MatchSpecialty(norm); ok {
		return true
	}
	_, _, ok := kb.MatchSymptom(norm)
	return ok
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 0x80
}
