package patterns

// defaultList is the exhaustive set of default bot signatures.
// Every entry is a regular expression source matched case-insensitively.
var defaultList = []string{
	// Word-level bot markers ("Googlebot", "AhrefsBot", "my-crawler-bot").
	// Cubot phones are not bots.
	`(?<![\w-])(?!cubot)[\w-]*bots?(?:\b|_)`,
	`(?<! channel/)(?<! google/)google(?!app|/google| pixel)`,
	`(?:^|[^g])news(?!sapphire)`,
	`(?<!lib)http`,
	`@[a-z][\w-]+\.`,
	`\(\)`,
	`\.com`,
	`\b\d{13}\b`,

	// Leading tokens of HTTP client libraries and tools.
	`^12345`,
	`^<`,
	`^[^ ]{50,}$`,
	`^ad muncher`,
	`^anglesharp/`,
	`^anonymous`,
	`^axios/`,
	`^biglotron`,
	`^btwebclient/`,
	`^castro`,
	`^clamav[ /]`,
	`^cobweb/`,
	`^coccoc`,
	`^curl/`,
	`^ddg[_-]android`,
	`^discourse`,
	`^dispatch/\d`,
	`^downcast/`,
	`^duckduckgo`,
	`^facebook`,
	`^fdm[ /]\d`,
	`^getright/`,
	`^go-http-client`,
	`^gozilla/`,
	`^hobbit`,
	`^hotzonu`,
	`^hwcdn/`,
	`^jeode/`,
	`^jetty/`,
	`^jigsaw`,
	`^libwww-perl`,
	`^linkdex`,
	`^lwp[-: ]`,
	`^metauri`,
	`^microsoft bits`,
	`^movabletype`,
	`^mozilla/\d\.\d \(compatible;?\)$`,
	`^mozilla/\d\.\d \w*$`,
	`^navermailapp`,
	`^netsurf`,
	`^node`,
	`^offline`,
	`^okhttp`,
	`^owler`,
	`^php`,
	`^postman`,
	`^python`,
	`^rank`,
	`^read`,
	`^reed`,
	`^rest`,
	`^ruby`,
	`^serf`,
	`^snapchat`,
	`^space bison`,
	`^svn`,
	`^swcd `,
	`^taringa`,
	`^thumbor/`,
	`^tumblr/`,
	`^user-agent:mozilla`,
	`^valid`,
	`^venus/fedoraplanet`,
	`^w3c`,
	`^webbandit/`,
	`^webcopier`,
	`^wget`,
	`^whatsapp`,
	`^xenu link sleuth`,
	`^yahoo`,
	`^yandex`,
	`^zdm/\d`,
	`^zoom marketplace/`,
	`^\{\{.*\}\}$`,

	// Named crawlers, monitors and automation tools anywhere in the string.
	` daum[ /]`,
	` deusu/`,
	` yadirectfetcher`,
	`adbeat\.com`,
	`appinsights`,
	`archive`,
	`ask jeeves/teoma`,
	`bit\.ly/`,
	`bluecoat drtr`,
	`browsex`,
	`burpcollaborator`,
	`capture`,
	`catch`,
	`check\b`,
	`checker`,
	`chrome-lighthouse`,
	`chromeframe`,
	`classifier`,
	`cloudflare`,
	`crawl`,
	`cypress/`,
	`dareboost`,
	`datanyze`,
	`dejaclick`,
	`dmbrowser`,
	`download`,
	`evc-batch/`,
	`exaleadcloudview`,
	`facebookexternalhit`,
	`feed`,
	`firephp`,
	`functionize`,
	`gomezagent`,
	`headless`,
	`httrack`,
	`hubspot marketing grader`,
	`hydra`,
	`ibisbrowser`,
	`images`,
	`infrawatch`,
	`insight`,
	`inspect`,
	`iplabel`,
	`ips-agent`,
	`java(?!;)`,
	`jsjcw_scanner`,
	`library`,
	`linkcheck`,
	`mail\.ru/`,
	`manager`,
	`measure`,
	`neustar wpm`,
	`nutch`,
	`offbyone`,
	`optimize`,
	`pageburst`,
	`pagespeed`,
	`parser`,
	`perl`,
	`phantomjs`,
	`pingdom`,
	`powermarks`,
	`preview`,
	`proxy`,
	`ptst[ /]\d`,
	`reputation`,
	`resolver`,
	`retriever`,
	`rexx;`,
	`rigor`,
	`rss\b`,
	`scan`,
	`scrape`,
	`sogou`,
	`sparkler/`,
	`spider`,
	`statuscake`,
	`stumbleupon\.com`,
	`supercleaner`,
	`synapse`,
	`synthetic`,
	`taginspector/`,
	`torrent`,
	`tracemyfile`,
	`transcoder`,
	`trendsmapresolver`,
	`twingly recon`,
	`virtuoso`,
	`wappalyzer`,
	`webglance`,
	`webkit2png`,
	`websitemetadataretriever`,
	`whatcms/`,
	`wordpress`,
	`zgrab`,
}
