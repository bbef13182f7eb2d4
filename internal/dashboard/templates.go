package dashboard

import "html/template"

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>flowdeck — dashboard</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
:root{
  --bg:#0a0a0f;--surface:#12121a;--border:#2a2a3a;
  --text:#e0e0ee;--text2:#8888aa;--text3:#555570;
  --accent:#38bdf8;--accent-dim:#0ea5e9;--danger:#ef4444;
  --mono:'SF Mono','Fira Code','JetBrains Mono',monospace;
  --sans:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;
}
body{font-family:var(--sans);background:var(--bg);color:var(--text);min-height:100vh;display:flex;align-items:center;justify-content:center}
.login-card{background:var(--surface);border:1px solid var(--border);border-radius:12px;padding:48px 40px;max-width:400px;width:100%;text-align:center}
.logo{font-family:var(--mono);font-size:1.5rem;font-weight:700;margin-bottom:8px}
.logo span{color:var(--accent)}
.subtitle{color:var(--text2);font-size:0.85rem;margin-bottom:32px}
.help{color:var(--text3);font-size:0.78rem;margin-bottom:24px;line-height:1.6}
.help code{background:var(--bg);padding:2px 6px;border-radius:4px;font-family:var(--mono);font-size:0.75rem;color:var(--accent)}
input[type=text]{width:100%;padding:14px 16px;background:var(--bg);border:1px solid var(--border);border-radius:8px;color:var(--text);font-family:var(--mono);font-size:1.2rem;text-align:center;letter-spacing:4px;outline:none}
input[type=text]:focus{border-color:var(--accent)}
button{width:100%;padding:12px;margin-top:16px;background:var(--accent-dim);color:#fff;border:none;border-radius:8px;font-size:0.9rem;font-weight:600;cursor:pointer}
.error{color:var(--danger);font-size:0.82rem;margin-top:12px}
.footer{margin-top:32px;color:var(--text3);font-size:0.72rem}
</style>
</head>
<body>
<div class="login-card">
  <div class="logo">flow<span>deck</span></div>
  <div class="subtitle">Dashboard Access</div>
  <p class="help">Enter the access code shown in your terminal.<br>Run <code>flowdeck serve</code> to get a code.</p>
  <form method="POST" action="/dashboard/login" autocomplete="off">
    <input type="text" name="code" placeholder="00000000" maxlength="8" pattern="\d{8}" inputmode="numeric" autofocus required>
    <button type="submit">Authenticate</button>
  </form>
  {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
  <p class="footer">Local access only &middot; 127.0.0.1</p>
</div>
</body>
</html>`))

const layoutHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>flowdeck — {{.Active}}</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
:root{
  --bg:#0a0a0f;--surface:#12121a;--surface2:#1a1a26;--border:#2a2a3a;
  --text:#e0e0ee;--text2:#8888aa;--text3:#555570;
  --accent:#38bdf8;--accent-dim:#0ea5e9;
  --l0:#67b7dc;--l1:#6794dc;--l2:#6771dc;--l3:#8067dc;
  --mono:'SF Mono','Fira Code','JetBrains Mono',monospace;
  --sans:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;
}
body{font-family:var(--sans);background:var(--bg);color:var(--text)}
nav{display:flex;gap:4px;align-items:center;padding:12px 20px;border-bottom:1px solid var(--border);background:var(--surface);position:sticky;top:0}
nav .logo{font-family:var(--mono);font-weight:700;margin-right:16px}
nav .logo span{color:var(--accent)}
nav a{color:var(--text2);text-decoration:none;padding:6px 12px;border-radius:6px;font-size:0.85rem}
nav a.active,nav a:hover{color:var(--text);background:var(--surface2)}
nav form{margin-left:auto}
nav form button{background:none;border:1px solid var(--border);border-radius:6px;color:var(--text3);padding:5px 12px;font-size:0.78rem;cursor:pointer}
nav form button:hover{color:var(--text)}
main{max-width:1100px;margin:0 auto;padding:24px 20px}
.cards{display:grid;grid-template-columns:repeat(auto-fit,minmax(180px,1fr));gap:12px;margin-bottom:24px}
.card{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:16px}
.card .label{color:var(--text2);font-size:0.75rem;text-transform:uppercase;letter-spacing:1px}
.card .value{font-family:var(--mono);font-size:1.6rem;margin-top:6px}
table{width:100%;border-collapse:collapse;font-size:0.85rem}
th,td{text-align:left;padding:8px 10px;border-bottom:1px solid var(--border)}
th{color:var(--text2);font-weight:500;font-size:0.75rem;text-transform:uppercase}
td.mono{font-family:var(--mono);font-size:0.8rem}
.empty{color:var(--text3);text-align:center;padding:48px 0}
.legend{display:flex;gap:16px;margin:12px 0;font-size:0.78rem;color:var(--text2)}
.legend .dot{display:inline-block;width:10px;height:10px;border-radius:50%;margin-right:5px}
</style>
</head>
<body>
<nav>
  <div class="logo">flow<span>deck</span></div>
  <a href="/dashboard" {{if eq .Active "overview"}}class="active"{{end}}>Overview</a>
  <a href="/dashboard/connections" {{if eq .Active "connections"}}class="active"{{end}}>Connections</a>
  <a href="/dashboard/proxies" {{if eq .Active "proxies"}}class="active"{{end}}>Proxies</a>
  <a href="/dashboard/rules" {{if eq .Active "rules"}}class="active"{{end}}>Rules</a>
  <a href="/dashboard/settings" {{if eq .Active "settings"}}class="active"{{end}}>Settings</a>
  <form method="POST" action="/dashboard/logout"><button type="submit">Log out</button></form>
</nav>
<main>
`

const layoutFoot = `</main>
</body>
</html>`

var overviewTmpl = template.Must(template.New("overview").Parse(layoutHead + `
<div class="cards">
  <div class="card"><div class="label">Connections</div><div class="value" id="stat-conns">{{.Connections}}</div></div>
  <div class="card"><div class="label">Upload</div><div class="value" id="stat-up">{{.Upload}}</div></div>
  <div class="card"><div class="label">Download</div><div class="value" id="stat-down">{{.Download}}</div></div>
  <div class="card"><div class="label">Graph</div><div class="value">{{.Nodes}}n / {{.Edges}}e</div></div>
</div>

<div class="legend">
  <span><span class="dot" style="background:var(--l0)"></span>Source</span>
  <span><span class="dot" style="background:var(--l1)"></span>Rule</span>
  <span><span class="dot" style="background:var(--l2)"></span>Chain Exit</span>
  <span><span class="dot" style="background:var(--l3)"></span>Chain Entry</span>
</div>

{{if .EmptyGraph}}
<div class="card"><div class="empty" id="flow">No active connections — the flow chart appears once traffic arrives.</div></div>
{{else}}
<div class="card"><canvas id="flow" width="1060" height="420"></canvas></div>
{{end}}

<script>
// Live flow rendering: refetch the aggregated graph on every SSE tick.
async function drawFlow() {
  const res = await fetch('/dashboard/api/flow');
  const g = await res.json();
  const canvas = document.getElementById('flow');
  if (!canvas || !canvas.getContext || g.nodes.length === 0) return;
  const ctx = canvas.getContext('2d');
  ctx.clearRect(0, 0, canvas.width, canvas.height);
  const cols = [[], [], [], []];
  g.nodes.forEach(n => cols[n.layer].push(n));
  const pos = {};
  cols.forEach((col, li) => col.forEach((n, i) => {
    pos[n.id] = {x: 80 + li * 300, y: 40 + i * (360 / Math.max(col.length, 1))};
  }));
  ctx.strokeStyle = 'rgba(136,136,170,0.35)';
  g.edges.forEach(e => {
    const a = pos[e.source], b = pos[e.target];
    if (!a || !b) return;
    ctx.lineWidth = Math.min(1 + e.weight, 8);
    ctx.beginPath(); ctx.moveTo(a.x, a.y); ctx.lineTo(b.x, b.y); ctx.stroke();
  });
  ctx.font = '11px monospace';
  g.nodes.forEach(n => {
    const p = pos[n.id];
    ctx.fillStyle = n.color;
    ctx.beginPath(); ctx.arc(p.x, p.y, 5, 0, 2 * Math.PI); ctx.fill();
    ctx.fillStyle = '#e0e0ee';
    ctx.fillText(n.name.slice(0, 28), p.x + 9, p.y + 4);
  });
}
drawFlow();
const es = new EventSource('/dashboard/api/events');
es.onmessage = (ev) => {
  const snap = JSON.parse(ev.data);
  document.getElementById('stat-conns').textContent = snap.connections;
  document.getElementById('stat-up').textContent = snap.uploadTotal;
  document.getElementById('stat-down').textContent = snap.downloadTotal;
  drawFlow();
};
</script>
` + layoutFoot))

var connectionsTmpl = template.Must(template.New("connections").Parse(layoutHead + `
{{if .Connections}}
<table>
  <thead><tr><th>Source</th><th>Host</th><th>Rule</th><th>Chain</th><th>Up</th><th>Down</th></tr></thead>
  <tbody>
  {{range .Connections}}
    <tr>
      <td class="mono">{{.SourceLabel}}</td>
      <td class="mono">{{.Host}}</td>
      <td>{{.RuleLabel}}</td>
      <td class="mono">{{range $i, $hop := .Chains}}{{if $i}} → {{end}}{{$hop}}{{end}}</td>
      <td class="mono">{{.Upload}}</td>
      <td class="mono">{{.Download}}</td>
    </tr>
  {{end}}
  </tbody>
</table>
{{else}}
<div class="empty">No active connections.</div>
{{end}}
` + layoutFoot))

var proxiesTmpl = template.Must(template.New("proxies").Parse(layoutHead + `
{{if .Rows}}
<table>
  <thead><tr><th>Proxy</th><th>Connections</th><th>Up</th><th>Down</th></tr></thead>
  <tbody>
  {{range .Rows}}
    <tr>
      <td class="mono">{{.Name}}</td>
      <td class="mono">{{.Count}}</td>
      <td class="mono">{{.Upload}}</td>
      <td class="mono">{{.Download}}</td>
    </tr>
  {{end}}
  </tbody>
</table>
{{else}}
<div class="empty">No proxy hops in the current snapshot.</div>
{{end}}
` + layoutFoot))

var rulesTmpl = template.Must(template.New("rules").Parse(layoutHead + `
{{if .Rows}}
<table>
  <thead><tr><th>Rule</th><th>Connections</th><th>Up</th><th>Down</th></tr></thead>
  <tbody>
  {{range .Rows}}
    <tr>
      <td>{{.Name}}</td>
      <td class="mono">{{.Count}}</td>
      <td class="mono">{{.Upload}}</td>
      <td class="mono">{{.Download}}</td>
    </tr>
  {{end}}
  </tbody>
</table>
{{else}}
<div class="empty">No matched rules in the current snapshot.</div>
{{end}}
` + layoutFoot))

var settingsTmpl = template.Must(template.New("settings").Parse(layoutHead + `
<style>
.tabbar{display:flex;gap:4px;margin-bottom:16px;position:sticky;top:53px;background:var(--bg);padding:8px 0}
.tabbar button{padding:8px 16px;background:var(--surface);border:1px solid var(--border);border-radius:8px;color:var(--text2);cursor:pointer;font-size:0.85rem}
.tabbar button.active{color:var(--text);border-color:var(--accent)}
section{min-height:70vh;padding:16px;border:1px solid var(--border);border-radius:10px;margin-bottom:16px;background:var(--surface)}
section h2{font-size:1rem;margin-bottom:12px;text-transform:capitalize}
section p{color:var(--text2);font-size:0.85rem;line-height:1.7}
</style>

<div class="tabbar" id="tabbar">
{{range .Tabs}}<button data-tab="{{.}}">{{.}}</button>{{end}}
</div>

{{range .Tabs}}
<section data-tab="{{.}}" id="tab-{{.}}">
  <h2>{{.}}</h2>
  <p>Settings for the {{.}} section.</p>
</section>
{{end}}

<script>
// Scroll-driven tab activation: observed intersection ratios are fed to
// the server-side selector, which debounces and picks the most visible
// section. Swipes and arrow keys cycle through the tab ring.
const threshold = {{.Threshold}};
const quietMs = {{.QuietMs}};

function markActive(tab) {
  document.querySelectorAll('#tabbar button').forEach(b => {
    b.classList.toggle('active', b.dataset.tab === tab);
  });
}

function observe(key, ratio) {
  fetch('/dashboard/api/visibility', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({key: key, ratio: ratio}),
  });
}

// The server debounces observations for quietMs and pushes its
// decision over the event stream; no client-side polling.
const es = new EventSource('/dashboard/api/events');
es.addEventListener('tab', ev => {
  const a = JSON.parse(ev.data);
  if (a.ok) markActive(a.active);
});

const io = new IntersectionObserver(entries => {
  entries.forEach(e => observe(e.target.dataset.tab, e.intersectionRatio));
}, {threshold: [0, 0.25, 0.5, 0.75, 1]});
document.querySelectorAll('section[data-tab]').forEach(s => io.observe(s));

function currentTab() {
  const b = document.querySelector('#tabbar button.active');
  return b ? b.dataset.tab : '';
}

async function cycle(dir) {
  const res = await fetch('/dashboard/api/tabs/cycle?from=' + encodeURIComponent(currentTab()) + '&dir=' + dir);
  const body = await res.json();
  document.getElementById('tab-' + body.tab).scrollIntoView({behavior: 'smooth'});
  markActive(body.tab);
}

document.addEventListener('keydown', e => {
  if (e.key === 'ArrowRight') cycle('next');
  if (e.key === 'ArrowLeft') cycle('prev');
});

let touchX = null;
document.addEventListener('touchstart', e => { touchX = e.touches[0].clientX; });
document.addEventListener('touchend', e => {
  if (touchX === null) return;
  const dx = e.changedTouches[0].clientX - touchX;
  if (dx < -60) cycle('next');
  if (dx > 60) cycle('prev');
  touchX = null;
});

document.querySelectorAll('#tabbar button').forEach(b => {
  b.addEventListener('click', () => {
    document.getElementById('tab-' + b.dataset.tab).scrollIntoView({behavior: 'smooth'});
    markActive(b.dataset.tab);
  });
});
</script>
` + layoutFoot))
