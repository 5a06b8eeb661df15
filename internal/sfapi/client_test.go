package sfapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "00DABC!token", Options{APIVersion: "v62.0", HTTPClient: srv.Client()})
}

func TestGetRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/services/data/v62.0/sobjects/Account/001000000000001AAA", r.URL.Path)
		assert.Equal(t, "Bearer 00DABC!token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"attributes":{"type":"Account"},"Id":"001000000000001AAA","Name":"Acme","Active__c":true}`)
	})

	rec, err := client.GetRecord(context.Background(), "Account", "001000000000001AAA")
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec["Name"])
	assert.Equal(t, true, rec["Active__c"])
}

func TestDescribe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/data/v62.0/sobjects/Account/describe", r.URL.Path)
		_, _ = io.WriteString(w, `{"name":"Account","fields":[
			{"name":"Name","label":"Account Name","type":"string","updateable":true},
			{"name":"OwnerId","label":"Owner ID","type":"reference","updateable":true,"referenceTo":["User"]},
			{"name":"Score__c","label":"Score","type":"double","updateable":false,"calculated":true,"calculatedFormula":"1 + 1"}
		]}`)
	})

	desc, err := client.Describe(context.Background(), "Account")
	require.NoError(t, err)
	require.Len(t, desc.Fields, 3)
	assert.Equal(t, []string{"User"}, desc.Fields[1].ReferenceTo)
	assert.True(t, desc.Fields[2].Calculated)
	assert.Equal(t, "1 + 1", desc.Fields[2].CalculatedFormula)
}

func TestUpdateRecord(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.UpdateRecord(context.Background(), "Account", "001", map[string]interface{}{"Name": "Acme2", "Description": nil})
	require.NoError(t, err)
	assert.Equal(t, "Acme2", body["Name"])
	v, present := body["Description"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestUpdateRecordRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `[{"message":"Name: data value too large","errorCode":"STRING_TOO_LONG","fields":["Name"]},{"message":"second","errorCode":"X"}]`)
	})

	err := client.UpdateRecord(context.Background(), "Account", "001", map[string]interface{}{"Name": "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Name: data value too large", apiErr.Message())
	assert.Len(t, apiErr.Errors, 2)
}

func TestAPIErrorFallbackMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `not json`)
	})

	_, err := client.GetRecord(context.Background(), "Account", "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not Found", apiErr.Message())
}

func TestQueryAndToolingQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/data/v62.0/query/":
			assert.Equal(t, "SELECT DurableId FROM EntityDefinition WHERE QualifiedApiName='Account'", r.URL.Query().Get("q"))
			_, _ = io.WriteString(w, `{"totalSize":1,"done":true,"records":[{"DurableId":"Account"}]}`)
		case "/services/data/v62.0/tooling/query/":
			_, _ = io.WriteString(w, `{"totalSize":1,"done":true,"records":[{"DurableId":"Account.00N000000000001","QualifiedApiName":"Score__c"}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	res, err := client.Query(ctx, "SELECT DurableId FROM EntityDefinition WHERE QualifiedApiName='Account'")
	require.NoError(t, err)
	assert.Equal(t, "Account", res.StringField(0, "DurableId"))
	assert.Equal(t, "", res.StringField(3, "DurableId"))

	tooling, err := client.ToolingQuery(ctx, "SELECT DurableId, QualifiedApiName FROM FieldDefinition")
	require.NoError(t, err)
	assert.Equal(t, "Score__c", tooling.StringField(0, "QualifiedApiName"))
}

func TestFetchPageUsesSessionCookie(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("sid")
		require.NoError(t, err)
		assert.Equal(t, "00DABC!token", c.Value)
		assert.Equal(t, "/005", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("isUserEntityOverride"))
		_, _ = io.WriteString(w, "<html></html>")
	})

	page, err := client.FetchPage(context.Background(), "/005", url.Values{"isUserEntityOverride": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", page)
}

func TestInstanceURL(t *testing.T) {
	assert.Equal(t, "https://acme.my.salesforce.com", InstanceURL("acme.my.salesforce.com"))
}
