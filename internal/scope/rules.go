package scope

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules hold the keyword data driving the classifier. They are data, not
// control flow: the decision ladder lives in classifier.go, the lists and
// thresholds are tuned by editing the YAML file without redeploying.
type Rules struct {
	RejectThreshold float64 `yaml:"reject_threshold"`

	BlockedPhrases []string `yaml:"blocked_phrases"`
	OfftopicTerms  []string `yaml:"offtopic_terms"`
	FitnessTerms   []string `yaml:"fitness_terms"`
	Greetings      []string `yaml:"greetings"`
	AppTerms       []string `yaml:"app_terms"`

	RecommendationPhrases []string `yaml:"recommendation_phrases"`
	AchievementPhrases    []string `yaml:"achievement_phrases"`
}

// DefaultRules mirrors configs/scope_rules.yaml so the classifier still works
// when no rule file is deployed alongside the binary.
func DefaultRules() Rules {
	return Rules{
		RejectThreshold: 0.85,
		BlockedPhrases: []string{
			"tinte de pelo",
			"corte de pelo",
			"qué me pongo",
			"cripto",
			"bitcoin",
			"horóscopo",
			"me quiere",
			"tarot",
		},
		OfftopicTerms: []string{
			"maquillaje", "tinte", "peinado", "manicura", "belleza",
			"moda", "ropa", "zapatos", "outfit",
			"novio", "novia", "pareja", "cita", "divorcio",
			"dinero", "inversión", "inversiones", "acciones", "hipoteca", "finanzas",
			"película", "pelicula", "serie", "concierto", "videojuego", "fútbol", "futbol",
			"elecciones", "política", "politica", "presidente",
			"makeup", "fashion", "dating", "stocks", "crypto", "politics", "movie",
		},
		FitnessTerms: []string{
			"caloría", "calorías", "caloria", "calorias", "kcal",
			"proteína", "proteina", "carbohidrato", "grasa", "macro", "macros",
			"comer", "comida", "dieta", "desayuno", "almuerzo", "cena", "ayuno",
			"peso", "adelgazar", "engordar", "masa muscular",
			"entrenar", "entrenamiento", "entreno", "ejercicio", "rutina",
			"pesas", "sentadilla", "press", "cardio", "correr", "caminar",
			"descanso", "dormir", "sueño", "hidratación", "agua",
			"calorie", "calories", "protein", "workout", "training", "diet",
			"exercise", "gym", "weight", "sleep", "muscle",
		},
		Greetings: []string{
			"hola", "buenas", "buenos días", "buenos dias", "buenas tardes",
			"buenas noches", "hey", "hello", "hi", "gracias", "ok", "vale",
		},
		AppTerms: []string{
			"vitalpath", "perfil", "configurar", "configuración", "configuracion",
			"cuenta", "app", "aplicación", "aplicacion", "registrar", "objetivo",
			"profile", "settings", "account",
		},
		RecommendationPhrases: []string{
			"te recomiendo", "recomiendo", "deberías", "deberias", "prueba",
			"intenta", "considera", "te sugiero", "sugiero", "podrías",
			"podrias", "es recomendable",
			"i recommend", "you should", "try to", "consider",
		},
		AchievementPhrases: []string{
			"felicidades", "felicitaciones", "enhorabuena", "lo lograste",
			"lo has conseguido", "excelente trabajo", "buen trabajo", "gran avance",
			"nuevo récord", "nuevo record", "sigue así", "sigue asi",
			"congratulations", "great job", "well done", "new record",
		},
	}
}

// LoadRules reads the YAML rule file. Missing optional lists fall back to the
// compiled-in defaults so a partial file only overrides what it names.
func LoadRules(path string) (Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read scope rules: %w", err)
	}
	r := DefaultRules()
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Rules{}, fmt.Errorf("parse scope rules: %w", err)
	}
	if r.RejectThreshold <= 0 || r.RejectThreshold >= 1 {
		r.RejectThreshold = DefaultRules().RejectThreshold
	}
	return r, nil
}
