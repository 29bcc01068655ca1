package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/go-querystring/query"

	"growth-automation/domain/model"
)

// graphAPI speaks the Meta Graph dialect shared by the facebook, instagram and ads adapters.
type graphAPI struct {
	*httpAPI
	baseURL string
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Graph reports expired tokens and throttling as 400 with an error code.
var (
	graphAuthCodes     = map[int]bool{102: true, 190: true}
	graphThrottleCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80004: true}
)

func (g *graphAPI) endpoint(path string, params any) (string, error) {
	u := strings.TrimRight(g.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if params == nil {
		return u, nil
	}
	v, err := query.Values(params)
	if err != nil {
		return "", err
	}
	if enc := v.Encode(); enc != "" {
		u += "?" + enc
	}
	return u, nil
}

func (g *graphAPI) get(ctx context.Context, op, path, token string, params, out any) error {
	u, err := g.endpoint(path, params)
	if err != nil {
		return err
	}
	return g.refine(g.getJSON(ctx, op, u, token, out))
}

func (g *graphAPI) post(ctx context.Context, op, path, token string, params, out any) error {
	u, err := g.endpoint(path, nil)
	if err != nil {
		return err
	}
	form, err := query.Values(params)
	if err != nil {
		return err
	}
	_, err = g.do(ctx, apiCall{
		op:          op,
		method:      http.MethodPost,
		url:         u,
		bearer:      token,
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, out)
	return g.refine(err)
}

func (g *graphAPI) refine(err error) error {
	var pe *model.ProviderError
	if !errors.As(err, &pe) || !errors.Is(pe.Kind, model.ErrContentRejected) {
		return err
	}
	var ge graphError
	if json.Unmarshal([]byte(pe.Message), &ge) != nil {
		return err
	}
	switch {
	case graphAuthCodes[ge.Error.Code] || (ge.Error.Type == "OAuthException" && ge.Error.Code == 0):
		pe.Kind = model.ErrUnauthorized
	case graphThrottleCodes[ge.Error.Code]:
		pe.Kind = model.ErrRateLimited
	}
	if ge.Error.Message != "" {
		pe.Message = ge.Error.Message
	}
	return pe
}

type graphFields struct {
	Fields string `url:"fields,omitempty"`
	Metric string `url:"metric,omitempty"`
	Period string `url:"period,omitempty"`
	Since  int64  `url:"since,omitempty"`
	Until  int64  `url:"until,omitempty"`
}

type graphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id,omitempty"`
}
