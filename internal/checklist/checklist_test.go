package checklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity/entitytest"
	"github.com/starford/staykeep/internal/kvstore"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/notify"
)

func tplItems(descs ...string) []models.ChecklistItem {
	out := make([]models.ChecklistItem, len(descs))
	for i, d := range descs {
		out[i] = models.ChecklistItem{ID: "t" + d, Description: d}
	}
	return out
}

func descriptions(items []models.InspectionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Description
	}
	return out
}

func TestReconcilePreservesProgressAcrossReorder(t *testing.T) {
	active := []models.InspectionItem{
		{ID: "a1", Description: "Check smoke detector"},
		{ID: "a2", Description: "Clean fridge", Completed: true, Notes: "done"},
		{ID: "a3", Description: "Restock towels"},
	}
	got := Reconcile(active, tplItems("Restock towels", "Clean fridge", "Check smoke detector"))

	require.Len(t, got, 3)
	assert.Equal(t, []string{"Restock towels", "Clean fridge", "Check smoke detector"}, descriptions(got))
	assert.Equal(t, models.InspectionItem{ID: "a2", Description: "Clean fridge", Completed: true, Notes: "done"}, got[1])
	assert.Equal(t, "a3", got[0].ID)
	assert.Equal(t, "a1", got[2].ID)
}

func TestReconcileAddsAndRemoves(t *testing.T) {
	active := []models.InspectionItem{
		{ID: "a1", Description: "X", Completed: true, Notes: "n"},
		{ID: "a2", Description: "Keep", Completed: true},
	}
	got := Reconcile(active, tplItems("Keep", "Y"))

	require.Len(t, got, 2)
	assert.NotContains(t, descriptions(got), "X")
	assert.Equal(t, "a2", got[0].ID)
	assert.True(t, got[0].Completed)

	y := got[1]
	assert.Equal(t, "Y", y.Description)
	assert.False(t, y.Completed)
	assert.Equal(t, "", y.Notes)
	assert.NotEmpty(t, y.ID)
	assert.NotEqual(t, "a1", y.ID)
}

func TestReconcileDuplicatesFirstMatchWins(t *testing.T) {
	active := []models.InspectionItem{
		{ID: "a1", Description: "Sweep", Completed: true, Notes: "first"},
		{ID: "a2", Description: "Sweep", Notes: "second"},
	}
	got := Reconcile(active, tplItems("Sweep", "Sweep", "Sweep"))

	require.Len(t, got, 3)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "a2", got[1].ID)
	assert.NotEqual(t, "a1", got[2].ID)
	assert.NotEqual(t, "a2", got[2].ID)
	assert.False(t, got[2].Completed)
}

func TestReconcileRenameStartsOver(t *testing.T) {
	active := []models.InspectionItem{{ID: "a1", Description: "Clean frdge", Completed: true}}
	got := Reconcile(active, tplItems("Clean fridge"))
	require.Len(t, got, 1)
	assert.False(t, got[0].Completed)
	assert.NotEqual(t, "a1", got[0].ID)
}

func TestReconcileWithCustomKey(t *testing.T) {
	active := []models.InspectionItem{{ID: "a1", Description: "clean fridge", Completed: true}}
	fold := func(s string) string { return string([]rune(s)[0]|0x20) + s[1:] }
	got := ReconcileWith(active, tplItems("Clean fridge"), fold)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "Clean fridge", got[0].Description)
}

func TestNewInstance(t *testing.T) {
	pid := "p1"
	tpl := models.ChecklistTemplate{Meta: models.Meta{ID: "tpl"}, Items: tplItems("A", "B"), PropertyID: &pid}
	in := NewInstance(tpl, nil, time.Unix(0, 0))
	require.Len(t, in.Items, 2)
	assert.Equal(t, "tpl", in.TemplateID)
	assert.Equal(t, &pid, in.PropertyID)
	for i, it := range in.Items {
		assert.NotEqual(t, tpl.Items[i].ID, it.ID)
		assert.False(t, it.Completed)
		assert.Empty(t, it.Notes)
	}
}

func TestNextOccurrence(t *testing.T) {
	from := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	days := 10

	assert.Nil(t, NextOccurrence(models.FrequencyNone, nil, from))
	assert.Equal(t, from.AddDate(0, 0, 1), *NextOccurrence(models.FrequencyDaily, nil, from))
	assert.Equal(t, from.AddDate(0, 0, 7), *NextOccurrence(models.FrequencyWeekly, nil, from))
	assert.Equal(t, from.AddDate(0, 1, 0), *NextOccurrence(models.FrequencyMonthly, nil, from))
	assert.Equal(t, from.AddDate(0, 0, 10), *NextOccurrence(models.FrequencyCustom, &days, from))
	assert.Nil(t, NextOccurrence(models.FrequencyCustom, nil, from))
}

type fixture struct {
	sync      *Synchronizer
	templates *entitytest.Repo[models.ChecklistTemplate, *models.ChecklistTemplate]
	records   *entitytest.Repo[models.InspectionRecord, *models.InspectionRecord]
	notes     *notify.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		templates: entitytest.NewRepo[models.ChecklistTemplate](models.TableChecklistTemplates, nil),
		records:   entitytest.NewRepo[models.InspectionRecord](models.TableInspectionRecords, nil),
		notes:     &notify.Recorder{},
	}
	f.sync = NewSynchronizer(f.templates, f.records, NewActiveStore(kvstore.NewMemory(nil)), f.notes)
	f.sync.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return f
}

func TestSynchronizerEditReconcilesActiveInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl, err := f.sync.CreateTemplate(ctx, models.ChecklistTemplate{
		Name:  "Turnover",
		Items: []models.ChecklistItem{{Description: "Clean fridge"}, {Description: "X"}},
	})
	require.NoError(t, err)
	for _, it := range tpl.Items {
		assert.NotEmpty(t, it.ID)
	}

	in, err := f.sync.Start(ctx, tpl.ID, nil)
	require.NoError(t, err)
	fridge := in.Items[0].ID
	_, err = f.sync.SetCompleted(tpl.ID, fridge, true)
	require.NoError(t, err)
	_, err = f.sync.SetNotes(tpl.ID, fridge, "done")
	require.NoError(t, err)

	tpl.Items = []models.ChecklistItem{{Description: "Y"}, tpl.Items[0]}
	_, err = f.sync.UpdateTemplate(ctx, tpl)
	require.NoError(t, err)

	got, ok, err := f.sync.Active(tpl.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Y", got.Items[0].Description)
	assert.False(t, got.Items[0].Completed)
	assert.Equal(t, fridge, got.Items[1].ID)
	assert.True(t, got.Items[1].Completed)
	assert.Equal(t, "done", got.Items[1].Notes)

	again, err := f.sync.Start(ctx, tpl.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, got, again, "start resumes the existing instance")
}

func TestSynchronizerUpdateWithoutActiveInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl, err := f.sync.CreateTemplate(ctx, models.ChecklistTemplate{Name: "Deep clean", Items: tplItems("Oven")})
	require.NoError(t, err)

	tpl.Name = "Deep clean v2"
	saved, err := f.sync.UpdateTemplate(ctx, tpl)
	require.NoError(t, err)
	assert.Equal(t, "Deep clean v2", saved.Name)
	_, ok, err := f.sync.Active(tpl.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSynchronizerValidationBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	_, err := f.sync.CreateTemplate(context.Background(), models.ChecklistTemplate{Name: ""})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, f.templates.Inserts)
	assert.Len(t, f.notes.Errors(), 1)
}

func TestSynchronizerComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := "p1"
	tpl, err := f.sync.CreateTemplate(ctx, models.ChecklistTemplate{
		Name: "Weekly", Items: tplItems("A", "B"), PropertyID: &pid, FrequencyType: models.FrequencyWeekly,
	})
	require.NoError(t, err)

	in, err := f.sync.Start(ctx, tpl.ID, nil)
	require.NoError(t, err)
	_, err = f.sync.SetCompleted(tpl.ID, in.Items[0].ID, true)
	require.NoError(t, err)

	rec, err := f.sync.Complete(ctx, tpl.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Weekly", rec.TemplateName)
	assert.Equal(t, &pid, rec.PropertyID)
	require.NotNil(t, rec.NextDueDate)
	assert.Equal(t, time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC), rec.NextDueDate.UTC())

	updated, err := f.templates.Get(ctx, tpl.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.NextOccurrence)
	assert.True(t, updated.NextOccurrence.Equal(*rec.NextDueDate))

	_, ok, err := f.sync.Active(tpl.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, f.records.Rows(), 1)
}

func TestSynchronizerCompleteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.Complete(ctx, "missing", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	tpl, err := f.sync.CreateTemplate(ctx, models.ChecklistTemplate{Name: "Empty"})
	require.NoError(t, err)
	_, err = f.sync.Start(ctx, tpl.ID, nil)
	require.NoError(t, err)
	_, err = f.sync.Complete(ctx, tpl.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, f.records.Inserts)

	_, err = f.sync.SetCompleted(tpl.ID, "nope", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSynchronizerSaveFailureKeepsInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl, err := f.sync.CreateTemplate(ctx, models.ChecklistTemplate{Name: "T", Items: tplItems("A")})
	require.NoError(t, err)
	_, err = f.sync.Start(ctx, tpl.ID, nil)
	require.NoError(t, err)

	f.records.Err = errors.New("network down")
	_, err = f.sync.Complete(ctx, tpl.ID, nil)
	require.Error(t, err)

	_, ok, err := f.sync.Active(tpl.ID)
	require.NoError(t, err)
	assert.True(t, ok, "progress is kept when the save fails")
	assert.NotEmpty(t, f.notes.Errors())
}
