package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"streamchat/internal/models"
)

const (
	ToolGetGuitars      = "getGuitars"
	ToolRecommendGuitar = "recommendGuitar"
	ToolWebSearch       = "web_search"
)

// Catalog is the read side of the guitar inventory.
type Catalog interface {
	List(ctx context.Context) ([]models.Guitar, error)
	Get(ctx context.Context, id int64) (*models.Guitar, error)
}

// InitToolsChain builds the tool set handed to the model. The web search
// tool is only added when enabled and at least one provider is available.
func InitToolsChain(ctx context.Context, catalog Catalog, webSearch bool) ([]tool.InvokableTool, error) {
	tools := []tool.InvokableTool{
		NewGetGuitarsTool(catalog),
		NewRecommendGuitarTool(catalog),
	}
	if webSearch {
		ws, err := InitWebSearch(ctx)
		if err != nil {
			return nil, err
		}
		if ws != nil {
			tools = append(tools, ws)
		}
	}
	return tools, nil
}

type getGuitarsParams struct{}

func NewGetGuitarsTool(catalog Catalog) tool.InvokableTool {
	info := &schema.ToolInfo{
		Name:        ToolGetGuitars,
		Desc:        "Get all products from the guitar inventory. Takes no parameters.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
	return utils.NewTool(info, func(ctx context.Context, _ *getGuitarsParams) ([]models.Guitar, error) {
		return catalog.List(ctx)
	})
}

type recommendGuitarParams struct {
	ID guitarID `json:"id"`
}

// guitarID accepts both 3 and "3"; models are inconsistent about which they send.
type guitarID int64

func (g *guitarID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*g = 0
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid guitar id %q", raw)
	}
	*g = guitarID(id)
	return nil
}

type recommendGuitarResult struct {
	ID string `json:"id"`
}

// NewRecommendGuitarTool returns the tool whose output the client renders as
// a product card. The output only carries the id; the card looks the guitar
// up itself.
func NewRecommendGuitarTool(catalog Catalog) tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: ToolRecommendGuitar,
		Desc: "Use this tool to recommend a guitar to the user. The guitar is shown with a buy button.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"id": {
				Desc:     "The id of the guitar to recommend, as returned by getGuitars.",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, func(ctx context.Context, params *recommendGuitarParams) (*recommendGuitarResult, error) {
		if params == nil || params.ID <= 0 {
			return nil, errors.New("id is required")
		}
		id := int64(params.ID)
		g, err := catalog.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("guitar %d: %w", id, err)
		}
		return &recommendGuitarResult{ID: fmt.Sprint(g.ID)}, nil
	})
}

// InitWebSearch returns nil when neither search provider can be built.
func InitWebSearch(ctx context.Context) (tool.InvokableTool, error) {
	googleTool, err := InitGooglesearch(ctx)
	if err != nil {
		return nil, err
	}
	duckTool, err := InitDDGsearch(ctx)
	if err != nil {
		slog.Warn("duckduckgo search disabled", "error", err)
	}
	if googleTool == nil && duckTool == nil {
		slog.Info("web search tool disabled: no search providers available")
		return nil, nil
	}

	ws := &webSearchTool{
		google:     googleTool,
		duck:       duckTool,
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
		limiter:    newToolRateLimiter(WebSearchRateLimit, WebSearchRateWindow),
	}

	info := &schema.ToolInfo{
		Name: ToolWebSearch,
		Desc: "Search the web for information; " +
			"automatically fallbacks to another provider if needed;" +
			"can search URL if needed.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}

	return utils.NewTool(info, ws.run), nil
}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	limiter    *toolRateLimiter
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	if w.limiter != nil && !w.limiter.Allow(ConversationFromContext(ctx)) {
		return "", errors.New("web search rate limit exceeded, please retry in a minute")
	}

	if looksLikeURL(query) {
		content, err := w.fetchURL(ctx, query)
		if err == nil {
			return content, nil
		}
		slog.Warn("web url loader failed", "url", query, "error", err)
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil {
		result, err := w.google.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		slog.Warn("google search failed", "error", err)
	}

	if w.duck != nil {
		result, err := w.duck.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		slog.Warn("duckduckgo search failed", "error", err)
	}

	return "", errors.New("no search provider succeeded")
}

// InitDDGsearch builds the DuckDuckGo text search tool. No token required.
func InitDDGsearch(ctx context.Context) (tool.InvokableTool, error) {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("new duckduckgo tool: %w", err)
	}
	return duckTool, nil
}

// InitGooglesearch returns nil without error when the credentials are unset.
func InitGooglesearch(ctx context.Context) (tool.InvokableTool, error) {
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleSearchEngineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if googleAPIKey == "" || googleSearchEngineID == "" {
		slog.Info("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil, nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         googleAPIKey,
		SearchEngineID: googleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		return nil, fmt.Errorf("new google search tool: %w", err)
	}
	return googleTool, nil
}
