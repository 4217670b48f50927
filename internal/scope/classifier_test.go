package scope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier() *Classifier {
	return NewClassifier(DefaultRules())
}

func TestClassify_OfftopicRejected(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("¿Qué tinte de pelo me queda mejor?")
	assert.False(t, r.IsRelevant)
	assert.GreaterOrEqual(t, r.Confidence, 0.98)
	assert.True(t, c.ShouldReject(r))

	r = c.Classify("¿En qué acciones debería invertir mi dinero este año?")
	assert.False(t, r.IsRelevant)
	assert.GreaterOrEqual(t, r.Confidence, 0.98)
}

func TestClassify_FitnessAccepted(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("¿Cuántas calorías debo comer hoy?")
	assert.True(t, r.IsRelevant)
	assert.GreaterOrEqual(t, r.Confidence, 0.85)
	assert.False(t, c.ShouldReject(r))

	// two term hits score higher than one
	two := c.Classify("quiero ajustar mi entrenamiento y mi dieta de esta semana")
	assert.Equal(t, 0.95, two.Confidence)
}

func TestClassify_ShortMessages(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("hola")
	assert.True(t, r.IsRelevant)
	assert.Equal(t, 0.9, r.Confidence)
	assert.Equal(t, ReasonGreeting, r.Reason)

	r = c.Classify("y ahora?")
	assert.True(t, r.IsRelevant)
	assert.Equal(t, 0.4, r.Confidence)
	assert.False(t, c.ShouldReject(r))
}

func TestClassify_LongNoKeywords(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("cuéntame algo interesante sobre cualquier tema del mundo")
	assert.True(t, r.IsRelevant)
	assert.Equal(t, 0.2, r.Confidence)
	assert.Equal(t, ReasonNoFitnessTerms, r.Reason)
}

func TestClassify_AppNavigation(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("cómo cambio mi objetivo en el perfil")
	assert.True(t, r.IsRelevant)
	// "objetivo"/"perfil" are app terms, but only after fitness terms miss
	assert.GreaterOrEqual(t, r.Confidence, 0.7)
}

func TestClassifyReply(t *testing.T) {
	c := newTestClassifier()

	assert.Equal(t, ReplyRecommendation, c.ClassifyReply("Te recomiendo subir la proteína del desayuno."))
	assert.Equal(t, ReplyAchievement, c.ClassifyReply("¡Enhorabuena! Llevas 5 entrenos esta semana, sigue así."))
	assert.Equal(t, ReplyNormal, c.ClassifyReply("Hoy llevas 1450 kcal de 2100."))
}

func TestClassifyFallback(t *testing.T) {
	c := newTestClassifier()

	assert.Equal(t, ReplyRecommendation, c.ClassifyFallback("¿Qué rutina me recomiendas para piernas?"))
	assert.Equal(t, ReplyNormal, c.ClassifyFallback("¿Cuántas calorías llevo hoy?"))
}

func TestLoadRules_OverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := "reject_threshold: 0.9\nofftopic_terms:\n  - astrología\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rules.RejectThreshold)
	assert.Equal(t, []string{"astrología"}, rules.OfftopicTerms)
	// untouched lists keep their defaults
	assert.NotEmpty(t, rules.FitnessTerms)

	c := NewClassifier(rules)
	r := c.Classify("háblame de astrología un momento")
	assert.False(t, r.IsRelevant)

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
