package contentblocker

import (
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/AdguardTeam/urlfilter/rules"
)

// FilterVerdict is the outcome of matching a request against user filters.
type FilterVerdict int

// Filter verdicts.
const (
	FilterNoMatch FilterVerdict = iota
	FilterBlock
	FilterAllow
)

// requestTypes maps tracker data resource types to filter request types.
var requestTypes = map[string]rules.RequestType{
	"script":         rules.TypeScript,
	"image":          rules.TypeImage,
	"stylesheet":     rules.TypeStylesheet,
	"xmlhttprequest": rules.TypeXmlhttprequest,
	"subdocument":    rules.TypeSubdocument,
	"font":           rules.TypeFont,
	"media":          rules.TypeMedia,
	"websocket":      rules.TypeWebsocket,
	"ping":           rules.TypePing,
}

// FilterEngine matches requests against filter lists in AdBlock syntax.
// Exception (@@) rules let a request through even when the tracker data
// would block it.
type FilterEngine struct {
	storage *filterlist.RuleStorage
	engine  *urlfilter.NetworkEngine
}

// NewFilterEngine builds an engine from the text of one or more lists.
func NewFilterEngine(lists ...string) (*FilterEngine, error) {
	ruleLists := make([]filterlist.RuleList, 0, len(lists))
	for i, text := range lists {
		ruleLists = append(ruleLists, &filterlist.StringRuleList{
			ID:             i + 1,
			RulesText:      text,
			IgnoreCosmetic: true,
		})
	}

	storage, err := filterlist.NewRuleStorage(ruleLists)
	if err != nil {
		return nil, errors.Annotate(err, "creating rule storage: %w")
	}

	return &FilterEngine{
		storage: storage,
		engine:  urlfilter.NewNetworkEngine(storage),
	}, nil
}

// LoadFilterEngine reads the filter lists at paths.
func LoadFilterEngine(paths []string) (*FilterEngine, error) {
	lists := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading filter list %s: %w", p, err)
		}
		lists = append(lists, string(data))
	}
	return NewFilterEngine(lists...)
}

// Match returns the verdict for resourceURL loaded by pageURL and the text of
// the deciding rule.
func (e *FilterEngine) Match(resourceURL, pageURL, resourceType string) (FilterVerdict, string) {
	if e == nil {
		return FilterNoMatch, ""
	}

	rt, ok := requestTypes[resourceType]
	if !ok {
		rt = rules.TypeOther
	}

	rule, ok := e.engine.Match(rules.NewRequest(resourceURL, pageURL, rt))
	if !ok || rule == nil {
		return FilterNoMatch, ""
	}
	if rule.Whitelist {
		return FilterAllow, rule.RuleText
	}
	return FilterBlock, rule.RuleText
}

// Close releases the rule storage.
func (e *FilterEngine) Close() error {
	if e == nil {
		return nil
	}
	return e.storage.Close()
}
