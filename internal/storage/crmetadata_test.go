package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	pipelineerrors "github.com/kyleking/d3-pipeline/internal/errors"
)

func TestNewCRTable(t *testing.T) {
	cr := NewCRTable(childcareTable())

	assert.Equal(t, CRTable{
		TableID:             "B01980",
		TableTitle:          "Licensed childcare providers and capacity",
		SimpleTableTitle:    "Childcare",
		SubjectArea:         "Education",
		Universe:            "Licensed providers",
		DenominatorColumnID: "b01980001",
		Topics:              []string{"childcare", "education"},
	}, cr)
}

func TestNewCRTableWithoutTopics(t *testing.T) {
	assert.Equal(t, []string{}, NewCRTable(catalog.Table{Name: "b01000"}).Topics)
}

func TestNewCRColumns(t *testing.T) {
	vars := catalog.MustNew("b01980", childcareVariables()).Variables()

	cols := NewCRColumns(vars)

	require.Len(t, cols, 2)
	assert.Equal(t, CRColumn{
		LineNumber: 1, Indent: 0, TableID: "B01980", ColumnID: "B01980001", ColumnTitle: "Total providers",
	}, cols[0])
	assert.Equal(t, CRColumn{
		LineNumber: 2, Indent: 1, TableID: "B01980", ColumnID: "B01980002", ColumnTitle: "Licensed centers",
		ParentColumnID: "b01980001",
	}, cols[1])
}

func TestNewCRTabulation(t *testing.T) {
	tab := NewCRTabulation(childcareTable())

	assert.Equal(t, "01980", tab.TabulationCode)
	assert.Equal(t, 0, tab.Weight)
	assert.Equal(t, []string{}, tab.TablesInOneYr)
	assert.Equal(t, []string{}, tab.TablesInThreeYr)
	assert.Equal(t, []string{"B01980"}, tab.TablesInFiveYr)
	assert.Equal(t, []string{"childcare", "education"}, tab.Topics)
}

func TestPublish(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	vars := catalog.MustNew("b01980", childcareVariables()).Variables()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO census.census_table_metadata")).
		WithArgs("B01980", "Licensed childcare providers and capacity", "Childcare", "Education",
			"Licensed providers", "b01980001", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO census.census_column_metadata")).
		WithArgs(1, 0, "B01980", "B01980001", "Total providers", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO census.census_column_metadata")).
		WithArgs(2, 1, "B01980", "B01980002", "Licensed centers", "b01980001").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO census_tabulation_metadata")).
		WithArgs("01980", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewCRPublisher(db).Publish(context.Background(), childcareTable(), vars))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO census.census_table_metadata")).
		WillReturnError(errors.New(`relation "census.census_table_metadata" does not exist`))
	mock.ExpectRollback()

	err = NewCRPublisher(db).Publish(context.Background(), childcareTable(), nil)
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsType(err, pipelineerrors.ErrTypeDatabase))
	assert.Contains(t, err.Error(), "B01980")

	require.NoError(t, mock.ExpectationsWereMet())
}
